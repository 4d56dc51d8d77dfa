// Package events publishes ingestion notifications.
package events

import (
	"context"
	"time"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectConversationIndexed = "conversation.indexed"
	SubjectImportCompleted     = "import.completed"
)

// Event is a notification with a subject suffix.
type Event interface {
	Subject() string
}

// ConversationIndexed is sent after a conversation's chunks are written.
type ConversationIndexed struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	Chunks         int       `json:"chunks"`
	Action         string    `json:"action"`
	IndexedAt      time.Time `json:"indexed_at"`
}

func (ConversationIndexed) Subject() string { return SubjectConversationIndexed }

// ImportCompleted is sent when an import or resume run finishes.
type ImportCompleted struct {
	ImportID    string    `json:"import_id"`
	Total       int       `json:"total"`
	Imported    int       `json:"imported"`
	Merged      int       `json:"merged"`
	Overwritten int       `json:"overwritten"`
	Skipped     int       `json:"skipped"`
	Resumed     int       `json:"resumed"`
	Failed      int       `json:"failed"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (ImportCompleted) Subject() string { return SubjectImportCompleted }

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
