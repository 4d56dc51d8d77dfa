package hosted

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/chatvault/ai"
	openai "github.com/sashabaranov/go-openai"
)

const parseAttempts = 3

// Classifier implements ai.Classifier with JSON-mode chat completions.
type Classifier struct {
	client  *openai.Client
	model   string
	maxTags int
	logger  *slog.Logger
}

var _ ai.Classifier = (*Classifier)(nil)

func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		client:  newClient(config.APIKey, config.ClassifierHost),
		model:   config.ClassifierModel,
		maxTags: config.MaxTags,
		logger:  slog.Default().With("component", "hosted-classifier"),
	}, nil
}

// NewClassifier creates a classifier for the hosted API.
func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	return newClassifier(config)
}

// Classify requests a JSON object with summary, tags and categories.
func (c *Classifier) Classify(ctx context.Context, text string, categories []string) (*ai.Classification, error) {
	if len(categories) == 0 {
		categories = ai.DefaultCategories
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ai.ClassificationPrompt(c.maxTags, categories)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, wrapError("classify", err)
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no completion choices returned")
			continue
		}

		result, err := ai.ParseClassification(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			c.logger.Warn("unparseable classification", "attempt", attempt, "err", err)
			continue
		}
		if len(result.Tags) > c.maxTags {
			result.Tags = result.Tags[:c.maxTags]
		}
		return result, nil
	}
	return nil, ai.NewProviderError(providerName, "classify", 0, lastErr)
}
