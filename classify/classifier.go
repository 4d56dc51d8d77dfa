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


// Package classify assigns tags, categories and a summary to conversations.
//
// Three variants share the Classifier interface: an LLM-backed classifier
// that delegates to an ai.Classifier, a local keyword heuristic and a no-op.
// New selects one by kind. Classification is best-effort: callers log
// failures and leave the conversation untagged.
package classify

import (
	"context"
	"log/slog"

	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/core"
)

// Kind names a classifier variant in configuration.
type Kind string

const (
	KindLLM       Kind = "llm"
	KindHeuristic Kind = "heuristic"
	KindNone      Kind = "none"
)

const (
	// DefaultMaxTags is the number of tags kept per conversation.
	DefaultMaxTags = 5

	// DefaultMaxTextLength caps the transcript sent to a language model, in runes.
	DefaultMaxTextLength = 8000
)

// Classifier labels a conversation.
type Classifier interface {
	Classify(ctx context.Context, conv *core.Conversation) (core.Labels, error)
}

type options struct {
	ai            ai.Classifier
	categories    []string
	maxTags       int
	maxTextLength int
	logger        *slog.Logger
}

// Option configures a classifier built by New.
type Option func(*options)

// WithAIClassifier sets the language model used by the llm kind.
func WithAIClassifier(c ai.Classifier) Option {
	return func(o *options) {
		o.ai = c
	}
}

// WithCategories sets the candidate categories.
func WithCategories(categories ...string) Option {
	return func(o *options) {
		o.categories = core.MergeLabels(nil, categories...)
	}
}

// WithMaxTags sets how many tags are kept.
func WithMaxTags(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTags = n
		}
	}
}

// WithMaxTextLength caps the transcript length sent to the language model.
func WithMaxTextLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTextLength = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New returns the classifier variant named by kind. An empty kind means none.
func New(kind Kind, opts ...Option) (Classifier, error) {
	o := &options{
		categories:    ai.DefaultCategories,
		maxTags:       DefaultMaxTags,
		maxTextLength: DefaultMaxTextLength,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.categories) == 0 {
		o.categories = ai.DefaultCategories
	}

	switch kind {
	case KindLLM:
		if o.ai == nil {
			return nil, ErrClassifierRequired
		}
		return &LLMClassifier{
			classifier:    o.ai,
			categories:    o.categories,
			maxTags:       o.maxTags,
			maxTextLength: o.maxTextLength,
			logger:        o.logger.With("component", "llm-classifier"),
		}, nil
	case KindHeuristic:
		return NewHeuristic(o.maxTags, o.categories), nil
	case KindNone, "":
		return Noop{}, nil
	default:
		return nil, &UnknownKindError{Kind: string(kind)}
	}
}

// Noop assigns no labels.
type Noop struct{}

func (Noop) Classify(context.Context, *core.Conversation) (core.Labels, error) {
	return core.Labels{}, nil
}
