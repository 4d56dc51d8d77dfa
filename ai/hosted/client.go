package hosted

import (
	"errors"

	"github.com/poiesic/chatvault/ai"
	openai "github.com/sashabaranov/go-openai"
)

const (
	providerName = "openai"

	// maxEmbeddingInputs is the hosted API's limit on inputs per embeddings request.
	maxEmbeddingInputs = 2048
)

// newClient builds a go-openai client for host, or the public API when host is empty.
func newClient(apiKey, host string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if host != "" {
		cfg.BaseURL = host
	}
	return openai.NewClientWithConfig(cfg)
}

// wrapError converts go-openai errors into *ai.ProviderError, keeping the HTTP status.
func wrapError(op string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return ai.NewProviderError(providerName, op, status, err)
}
