package storage

import (
	"context"

	"github.com/poiesic/chatvault/core"
)

// ConversationRepository stores conversations with their turns and labels.
type ConversationRepository interface {
	// PutConversation inserts or replaces a conversation with its turns.
	// Sets InsertedAt on first write and UpdatedAt on every write.
	PutConversation(ctx context.Context, conv *core.Conversation) error

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if the conversation doesn't exist.
	GetConversation(ctx context.Context, id string) (*core.Conversation, error)

	// DeleteConversation removes a conversation with its chunks, embeddings and staged vectors.
	// Returns ErrNotFound if the conversation doesn't exist.
	DeleteConversation(ctx context.Context, id string) error

	// ListConversations returns conversations newest first, skipping offset.
	// A limit <= 0 returns all remaining conversations.
	ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error)

	// CountConversations returns the number of stored conversations.
	CountConversations(ctx context.Context) (int, error)

	// FindByTag returns conversations carrying tag, newest first. Matching ignores case.
	FindByTag(ctx context.Context, tag string) ([]*core.Conversation, error)

	// FindByCategory returns conversations in category, newest first. Matching ignores case.
	FindByCategory(ctx context.Context, category string) ([]*core.Conversation, error)

	// UpdateLabels replaces the tags, categories and summary of a conversation.
	// Returns ErrNotFound if the conversation doesn't exist.
	UpdateLabels(ctx context.Context, id string, labels core.Labels) error

	// Tags returns every tag with the number of conversations carrying it, most used first.
	Tags(ctx context.Context) ([]core.LabelCount, error)

	// Categories returns every category with its conversation count, most used first.
	Categories(ctx context.Context) ([]core.LabelCount, error)

	// SearchText returns conversations whose title or turns contain every query keyword.
	SearchText(ctx context.Context, query string, limit int) ([]*core.Conversation, error)

	// PendingConversations returns conversations whose chunks are not embedded with model.
	// A limit <= 0 returns all of them.
	PendingConversations(ctx context.Context, model string, limit int) ([]*core.Conversation, error)
}

// ChunkRepository stores chunks and their per-model embeddings.
type ChunkRepository interface {
	// PutChunks atomically replaces the chunk set of a conversation, writes the
	// model's vectors, drops embeddings of chunks no longer present, marks the
	// conversation as embedded with model and clears its staged vectors.
	// Every chunk must carry a vector. Returns ErrDimensionMismatch when a
	// vector does not match the model's recorded dimension.
	PutChunks(ctx context.Context, conversationID, model string, chunks []*core.Chunk) error

	// GetChunks returns the chunks of a conversation ordered by Seq, without vectors.
	GetChunks(ctx context.Context, conversationID string) ([]*core.Chunk, error)

	// ChunkVectors returns the model's vectors for a conversation's chunks.
	ChunkVectors(ctx context.Context, model, conversationID string) (map[core.ID][]float32, error)

	// NearestChunks returns at most k chunks embedded with model, ordered by
	// cosine similarity to vector (highest first, ties by ascending chunk ID).
	// The scan reads a single consistent snapshot.
	NearestChunks(ctx context.Context, model string, vector []float32, k int) ([]core.ScoredChunk, error)

	// StageEmbeddings keeps vectors of a partly embedded conversation until PutChunks.
	StageEmbeddings(ctx context.Context, model, conversationID string, vectors map[core.ID][]float32) error

	// StagedEmbeddings returns the staged vectors for the given chunk IDs.
	// Missing IDs are absent from the map.
	StagedEmbeddings(ctx context.Context, model string, ids []core.ID) (map[core.ID][]float32, error)

	// Dimension returns the vector dimension recorded for model, or 0 if none was written yet.
	Dimension(ctx context.Context, model string) (int, error)
}

// Store is a complete knowledge store.
type Store interface {
	ConversationRepository
	ChunkRepository

	// Close closes the storage backend and releases resources.
	Close() error
}
