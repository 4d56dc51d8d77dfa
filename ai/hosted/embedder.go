package hosted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/chatvault/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder implements ai.Embedder against the hosted OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var (
	_ ai.Embedder   = (*Embedder)(nil)
	_ ai.BatchSizer = (*Embedder)(nil)
)

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		client: newClient(config.APIKey, config.EmbeddingHost),
		model:  config.EmbeddingModel,
		logger: slog.Default().With("component", "hosted-embedder"),
	}, nil
}

// NewEmbedder creates an embedder for the hosted API.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// MaxBatchSize returns the number of inputs accepted per request.
func (e *Embedder) MaxBatchSize() int {
	return maxEmbeddingInputs
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple texts in one request.
// The response is reordered by its index field so results follow the input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		e.logger.Debug("embedding request failed", "texts", len(texts), "err", err)
		return nil, wrapError("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ai.NewProviderError(providerName, "embed", 0,
			fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, ai.NewProviderError(providerName, "embed", 0,
				errors.New("embedding response has invalid indices"))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
