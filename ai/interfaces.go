package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns a *ProviderError if the provider call fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns a *ProviderError if the provider call fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the identifier of the embedding model.
	// Stored vectors are versioned by this value.
	Model() string
}

// BatchSizer is implemented by embedders whose provider caps the batch size.
type BatchSizer interface {
	MaxBatchSize() int
}

// Classifier suggests a summary, tags and categories for a block of conversation text.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// Classify analyzes text and picks categories from the candidate list.
	// Returns a *ProviderError if the provider call fails.
	Classify(ctx context.Context, text string, categories []string) (*Classification, error)
}

// Classification is the language model's reading of a conversation.
type Classification struct {
	// Summary is a one or two sentence description of the conversation.
	Summary string

	// Tags are short lowercase topics, most relevant first.
	Tags []string

	// Categories are picked from the candidate list given to Classify.
	Categories []string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Classifier returns the conversation classification service.
	Classifier() Classifier

	// Close releases resources held by the provider and its services.
	Close() error
}
