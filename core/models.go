package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for chunks.
type ID uint64

// IDFromContent generates a deterministic ID from the given parts using BLAKE2b hashing.
// Parts are separated by a NUL byte so ("ab", "c") and ("a", "bc") differ.
func IDFromContent(parts ...string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex so lexical order matches numeric order.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Role identifies who authored a turn.
type Role int

const (
	// RoleUser is a human participant.
	RoleUser Role = iota + 1
	// RoleAssistant is the model answering.
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Turn is a single message within a conversation.
type Turn struct {
	Role      Role
	Text      string
	Position  int       // Zero-based, contiguous within a conversation
	Timestamp time.Time // Zero when the export carries no per-message time
}

// Conversation is one imported chat session with its ordered turns.
// Only labels and index bookkeeping change after the first write.
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	Turns        []Turn
	Tags         []string
	Categories   []string
	Summary      string
	Source       string   // Export format the conversation was read from
	EmbeddedWith []string // Embedding models whose chunk index is complete
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// TurnTexts returns the text of every turn in order.
func (c *Conversation) TurnTexts() []string {
	texts := make([]string, len(c.Turns))
	for i, turn := range c.Turns {
		texts[i] = turn.Text
	}
	return texts
}

// IsEmbeddedWith reports whether the conversation's chunks carry vectors from model.
func (c *Conversation) IsEmbeddedWith(model string) bool {
	for _, m := range c.EmbeddedWith {
		if m == model {
			return true
		}
	}
	return false
}

// Labels returns the conversation's current labels.
func (c *Conversation) Labels() Labels {
	return Labels{
		Tags:       c.Tags,
		Categories: c.Categories,
		Summary:    c.Summary,
	}
}

// Chunk is a retrieval-sized span of one conversation.
type Chunk struct {
	ID             ID
	ConversationID string
	Seq            int
	FirstTurn      int
	LastTurn       int
	Continues      bool // The last turn carries on in the next chunk
	Text           string
	Model          string    // Embedding model, empty until embedded
	Vector         []float32 // Embedding, nil until embedded
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk *Chunk
	Score float32
}

// Hit is one ranked search result resolved to its conversation.
type Hit struct {
	Conversation *Conversation
	Chunk        *Chunk
	Excerpt      string
	Score        float32
}

// Labels are the classifier's output for a conversation.
type Labels struct {
	Tags       []string
	Categories []string
	Summary    string
}

// IsEmpty reports whether no label was assigned.
func (l Labels) IsEmpty() bool {
	return len(l.Tags) == 0 && len(l.Categories) == 0 && l.Summary == ""
}

// LabelCount is a tag or category with the number of conversations carrying it.
type LabelCount struct {
	Label string
	Count int
}
