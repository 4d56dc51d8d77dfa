package ingestion

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/chatvault/core"
)

// DefaultTitle is used for conversations whose export carries no title.
const DefaultTitle = "Imported Conversation"

// Export formats recorded in Conversation.Source.
const (
	SourceChatGPT = "chatgpt"
	SourceGeneric = "generic"
)

// conversationNamespace seeds the UUIDv5 of conversations exported without an ID.
var conversationNamespace = uuid.MustParse("6f1d7c8e-3b0a-5c51-9a6e-2f4d8b9e0c17")

// Fallback field names, tried in order.
var (
	idFields       = []string{"id", "conversation_id", "uuid"}
	titleFields    = []string{"title", "name"}
	timeFields     = []string{"create_time", "created_at", "createdAt", "timestamp"}
	messagesFields = []string{"messages", "turns", "chat_messages", "conversation"}
	roleFields     = []string{"role", "author", "sender", "speaker", "from"}
	textFields     = []string{"content", "text", "message", "body", "parts"}
)

// RawConversation is one decoded export record. Numbers are json.Number.
type RawConversation map[string]any

// Normalizer turns export records into conversations. It holds no state and
// is safe for concurrent use.
type Normalizer struct {
	// DefaultTitle replaces a missing title. Empty means DefaultTitle.
	DefaultTitle string
}

// NewNormalizer returns a Normalizer with default settings.
func NewNormalizer() *Normalizer {
	return &Normalizer{DefaultTitle: DefaultTitle}
}

// Normalize maps raw onto a conversation. index identifies the record in errors.
func (n *Normalizer) Normalize(index int, raw RawConversation) (*core.Conversation, error) {
	if raw == nil {
		return nil, malformed(index, "", "record is not a JSON object")
	}

	conv := &core.Conversation{
		Title: strings.TrimSpace(firstString(raw, titleFields...)),
	}
	if conv.Title == "" {
		conv.Title = n.DefaultTitle
		if conv.Title == "" {
			conv.Title = DefaultTitle
		}
	}
	if t, ok := firstTime(raw, timeFields...); ok {
		conv.CreatedAt = t
	}

	var err error
	if mapping, ok := raw["mapping"].(map[string]any); ok {
		conv.Source = SourceChatGPT
		conv.Turns, err = mappingTurns(index, mapping)
	} else {
		conv.Source = SourceGeneric
		conv.Turns, err = genericTurns(index, raw)
	}
	if err != nil {
		return nil, err
	}
	if len(conv.Turns) == 0 {
		return nil, malformed(index, "turns", "no user or assistant turns")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.Turns[0].Timestamp
	}

	conv.ID = strings.TrimSpace(firstString(raw, idFields...))
	if conv.ID == "" {
		conv.ID = contentID(conv)
	}

	if err := core.ValidateConversation(conv); err != nil {
		return nil, malformed(index, "", "%v", err)
	}
	return conv, nil
}

// contentID derives a stable ID from the title and turns.
func contentID(conv *core.Conversation) string {
	var b strings.Builder
	b.WriteString(conv.Title)
	for _, turn := range conv.Turns {
		b.WriteByte(0)
		b.WriteString(turn.Role.String())
		b.WriteByte(0)
		b.WriteString(turn.Text)
	}
	return uuid.NewSHA1(conversationNamespace, []byte(b.String())).String()
}

// mappingTurns walks a ChatGPT node tree from the root along first children.
func mappingTurns(index int, mapping map[string]any) ([]core.Turn, error) {
	// Map iteration order is random; sort so a tree with several roots walks the same one.
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var current string
	for _, key := range keys {
		node, _ := mapping[key].(map[string]any)
		if node == nil || node["parent"] != nil {
			continue
		}
		if children := stringList(node["children"]); len(children) > 0 {
			current = key
			break
		}
	}
	if current == "" {
		return nil, malformed(index, "mapping", "no root node with children")
	}

	var turns []core.Turn
	visited := make(map[string]bool)
	for current != "" && !visited[current] {
		visited[current] = true
		node, _ := mapping[current].(map[string]any)
		if node == nil {
			break
		}
		if msg, ok := node["message"].(map[string]any); ok {
			if turn, ok := mappingTurn(msg); ok {
				turn.Position = len(turns)
				turns = append(turns, turn)
			}
		}
		current = ""
		if children := stringList(node["children"]); len(children) > 0 {
			current = children[0]
		}
	}
	return turns, nil
}

// mappingTurn converts a ChatGPT message. System, tool and empty messages are skipped.
func mappingTurn(msg map[string]any) (core.Turn, bool) {
	author, _ := msg["author"].(map[string]any)
	roleName, _ := author["role"].(string)
	if roleName == "" {
		roleName = "user"
	}
	role, ok := parseRole(roleName)
	if !ok {
		return core.Turn{}, false
	}

	content, _ := msg["content"].(map[string]any)
	text := strings.TrimSpace(strings.Join(textParts(content["parts"]), " "))
	if text == "" {
		return core.Turn{}, false
	}

	turn := core.Turn{Role: role, Text: text}
	if t, ok := firstTime(msg, "create_time"); ok {
		turn.Timestamp = t
	}
	return turn, true
}

// genericTurns reads a message array under any of the known names.
func genericTurns(index int, raw RawConversation) ([]core.Turn, error) {
	var items []any
	found := false
	for _, field := range messagesFields {
		if list, ok := raw[field].([]any); ok {
			items = list
			found = true
			break
		}
	}
	if !found {
		return nil, malformed(index, "messages", "absent (tried %s)", strings.Join(messagesFields, ", "))
	}

	var turns []core.Turn
	for i, item := range items {
		msg, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(index, fmt.Sprintf("messages[%d]", i), "not an object")
		}

		roleName, ok := messageRole(msg)
		if !ok {
			return nil, malformed(index, fmt.Sprintf("messages[%d].role", i),
				"absent (tried %s)", strings.Join(roleFields, ", "))
		}
		role, ok := parseRole(roleName)
		if !ok {
			if isSkippedRole(roleName) {
				continue
			}
			return nil, malformed(index, fmt.Sprintf("messages[%d].role", i), "unknown role %q", roleName)
		}

		text, ok := messageText(msg)
		if !ok {
			return nil, malformed(index, fmt.Sprintf("messages[%d].text", i),
				"absent (tried %s)", strings.Join(textFields, ", "))
		}
		if text == "" {
			continue
		}

		turn := core.Turn{Role: role, Text: text, Position: len(turns)}
		if t, ok := firstTime(msg, timeFields...); ok {
			turn.Timestamp = t
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func messageRole(msg map[string]any) (string, bool) {
	for _, field := range roleFields {
		switch v := msg[field].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v, true
			}
		case map[string]any:
			if role, ok := v["role"].(string); ok && role != "" {
				return role, true
			}
			if name, ok := v["name"].(string); ok && name != "" {
				return name, true
			}
		}
	}
	return "", false
}

// messageText returns the trimmed text and whether any text field was present.
func messageText(msg map[string]any) (string, bool) {
	for _, field := range textFields {
		v, ok := msg[field]
		if !ok || v == nil {
			continue
		}
		parts := textParts(v)
		if parts == nil {
			continue
		}
		return strings.TrimSpace(strings.Join(parts, " ")), true
	}
	return "", false
}

// textParts flattens a string, a list of strings or text blocks, or an
// object with parts or text. Nil means no text shape was recognized.
func textParts(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []any:
		parts := []string{}
		for _, item := range v {
			for _, part := range textParts(item) {
				if strings.TrimSpace(part) != "" {
					parts = append(parts, part)
				}
			}
		}
		return parts
	case map[string]any:
		if parts, ok := v["parts"]; ok {
			return textParts(parts)
		}
		if text, ok := v["text"]; ok {
			return textParts(text)
		}
	}
	return nil
}

func parseRole(name string) (core.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "user", "human", "me":
		return core.RoleUser, true
	case "assistant", "ai", "bot", "model", "chatgpt", "gpt", "claude", "gemini":
		return core.RoleAssistant, true
	}
	return 0, false
}

func isSkippedRole(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "system", "tool", "function", "developer":
		return true
	}
	return false
}

func firstString(m map[string]any, fields ...string) string {
	for _, field := range fields {
		if s, ok := m[field].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func stringList(v any) []string {
	items, _ := v.([]any)
	list := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			list = append(list, s)
		}
	}
	return list
}

// firstTime reads epoch seconds, epoch milliseconds or RFC 3339 from the first field present.
func firstTime(m map[string]any, fields ...string) (time.Time, bool) {
	for _, field := range fields {
		if t, ok := parseTime(m[field]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// Epoch values above this are taken as milliseconds (year 5138 in seconds).
const millisecondThreshold = 1e11

func parseTime(v any) (time.Time, bool) {
	var epoch float64
	switch v := v.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		epoch = f
	case float64:
		epoch = v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		epoch = f
	default:
		return time.Time{}, false
	}

	if epoch <= 0 || math.IsNaN(epoch) || math.IsInf(epoch, 0) {
		return time.Time{}, false
	}
	if epoch > millisecondThreshold {
		return time.UnixMilli(int64(epoch)).UTC(), true
	}
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}
