// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/chatvault/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// parseAttempts bounds how often a malformed JSON answer is regenerated.
const parseAttempts = 3

// Classifier implements ai.Classifier using OpenAI-compatible chat APIs.
type Classifier struct {
	client  llms.Model
	maxTags int
	logger  *slog.Logger
}

var _ ai.Classifier = (*Classifier)(nil)

// newClassifier is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(tokenFor(config)),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		client:  client,
		maxTags: config.MaxTags,
		logger:  slog.Default().With("component", "openai-classifier"),
	}, nil
}

// NewClassifier creates a new classifier using the provided configuration.
//
// Returns ai.Classifier interface to enforce abstraction.
func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	return newClassifier(config)
}

// Classify asks the model for a summary, tags and categories in JSON mode.
// Unparseable answers are regenerated up to three times.
func (c *Classifier) Classify(ctx context.Context, text string, categories []string) (*ai.Classification, error) {
	if len(categories) == 0 {
		categories = ai.DefaultCategories
	}

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(ai.ClassificationPrompt(c.maxTags, categories)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(text),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, ai.NewProviderError(providerName, "classify", 0, err)
		}

		if len(response.Choices) < 1 {
			c.logger.Debug("no choices returned from model")
			return &ai.Classification{}, nil
		}

		result, err := ai.ParseClassification(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			c.logger.Warn("error parsing classifier response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}

		if len(result.Tags) > c.maxTags {
			result.Tags = result.Tags[:c.maxTags]
		}
		c.logger.Debug("classified conversation", "tags", len(result.Tags), "categories", len(result.Categories))
		return result, nil
	}

	c.logger.Error("failed to parse classifier response after retries", "err", lastErr)
	return nil, ai.NewProviderError(providerName, "classify", 0, lastErr)
}
