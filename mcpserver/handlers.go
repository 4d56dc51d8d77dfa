package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
)

// Handlers implements the chatvault tools.
type Handlers struct {
	store    storage.ConversationRepository
	searcher Searcher
	logger   *slog.Logger
}

type searchResult struct {
	ConversationID string   `json:"conversation_id"`
	Title          string   `json:"title"`
	Date           string   `json:"date,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Score          float32  `json:"score"`
	Excerpt        string   `json:"excerpt"`
}

type conversationSummary struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Date    string   `json:"date,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

type tagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// SearchConversations handles the search_conversations tool.
func (h *Handlers) SearchConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k := request.GetInt("k", 0)
	perConv := request.GetInt("per_conversation", 0)

	hits, err := h.searcher.Search(ctx, query, search.WithK(k), search.WithCap(perConv))
	if err != nil {
		h.logger.Error("search failed", "query", query, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	results := make([]searchResult, len(hits))
	for i, hit := range hits {
		results[i] = searchResult{
			ConversationID: hit.Conversation.ID,
			Title:          hit.Conversation.Title,
			Date:           formatDate(hit.Conversation.CreatedAt),
			Tags:           hit.Conversation.Tags,
			Score:          hit.Score,
			Excerpt:        hit.Excerpt,
		}
	}
	return jsonResult(results)
}

// GetConversation handles the get_conversation tool. The transcript is plain text.
func (h *Handlers) GetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required and must be a string"), nil
	}

	conv, err := h.store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("conversation %q not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load conversation: %v", err)), nil
	}
	return mcp.NewToolResultText(transcript(conv)), nil
}

func transcript(conv *core.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", conv.Title)
	if date := formatDate(conv.CreatedAt); date != "" {
		fmt.Fprintf(&b, "Date: %s\n", date)
	}
	if len(conv.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(conv.Tags, ", "))
	}
	if conv.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", conv.Summary)
	}
	for _, turn := range conv.Turns {
		fmt.Fprintf(&b, "\n%s: %s\n", turn.Role, turn.Text)
	}
	return b.String()
}

// ListTags handles the list_tags tool.
func (h *Handlers) ListTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := h.store.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tags: %v", err)), nil
	}
	tags := make([]tagCount, len(counts))
	for i, c := range counts {
		tags[i] = tagCount{Tag: c.Label, Count: c.Count}
	}
	return jsonResult(tags)
}

// ConversationsByTag handles the conversations_by_tag tool.
func (h *Handlers) ConversationsByTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError("tag argument is required and must be a string"), nil
	}

	convs, err := h.store.FindByTag(ctx, tag)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to find conversations: %v", err)), nil
	}
	out := make([]conversationSummary, len(convs))
	for i, c := range convs {
		out[i] = conversationSummary{
			ID:      c.ID,
			Title:   c.Title,
			Date:    formatDate(c.CreatedAt),
			Tags:    c.Tags,
			Summary: c.Summary,
		}
	}
	return jsonResult(out)
}
