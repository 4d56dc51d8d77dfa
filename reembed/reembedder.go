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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/chatvault/classify"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
)

// Config holds configuration for a reembedding or retagging run.
type Config struct {
	// BatchSize is the number of conversations fetched per batch
	BatchSize int

	// ReportInterval is how often to report progress (number of conversations)
	ReportInterval int

	// Force processes conversations that are already done
	Force bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
	}
}

// Indexer chunks and embeds one conversation for its model.
// *ingestion.Pipeline implements it.
type Indexer interface {
	Model() string
	Index(ctx context.Context, conv *core.Conversation) (int, error)
}

// Reembedder indexes every stored conversation for the indexer's model.
type Reembedder struct {
	store    storage.ConversationRepository
	indexer  Indexer
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store storage.ConversationRepository, indexer Indexer, config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reembedder{
		store:    store,
		indexer:  indexer,
		config:   config,
		progress: progress,
		logger:   logger.With("component", "reembedder", "model", indexer.Model()),
	}, nil
}

// Run indexes every conversation not yet embedded with the model, or every
// conversation when Force is set. A failed conversation is logged and
// skipped; Run then returns ErrIncomplete after visiting the rest.
func (r *Reembedder) Run(ctx context.Context) error {
	model := r.indexer.Model()
	return walk(ctx, r.store, r.config, r.progress, "reembedding", func(ctx context.Context, conv *core.Conversation) (bool, error) {
		if !r.config.Force && conv.IsEmbeddedWith(model) {
			return false, nil
		}
		chunks, err := r.indexer.Index(ctx, conv)
		if err != nil {
			r.logger.Warn("reembedding failed", "conversation", conv.ID, "err", err)
			return false, err
		}
		r.logger.Debug("reembedded conversation", "conversation", conv.ID, "chunks", chunks)
		return true, nil
	})
}

// Retagger classifies stored conversations again and replaces their labels.
type Retagger struct {
	store      storage.ConversationRepository
	classifier classify.Classifier
	config     *Config
	progress   io.Writer
	logger     *slog.Logger
}

// NewRetagger creates a new retagger.
// Without Force only conversations that carry no labels are classified.
func NewRetagger(store storage.ConversationRepository, classifier classify.Classifier, config *Config, progress io.Writer, logger *slog.Logger) (*Retagger, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retagger{
		store:      store,
		classifier: classifier,
		config:     config,
		progress:   progress,
		logger:     logger.With("component", "retagger"),
	}, nil
}

// Run classifies conversations and stores the resulting labels.
func (r *Retagger) Run(ctx context.Context) error {
	return walk(ctx, r.store, r.config, r.progress, "retagging", func(ctx context.Context, conv *core.Conversation) (bool, error) {
		if !r.config.Force && !conv.Labels().IsEmpty() {
			return false, nil
		}
		labels, err := r.classifier.Classify(ctx, conv)
		if err != nil {
			r.logger.Warn("classification failed", "conversation", conv.ID, "err", err)
			return false, err
		}
		if err := r.store.UpdateLabels(ctx, conv.ID, labels.Normalized()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// walk visits every stored conversation with fn, tracking progress.
// fn reports whether it changed the conversation.
func walk(ctx context.Context, store storage.ConversationRepository, config *Config, out io.Writer, verb string,
	fn func(context.Context, *core.Conversation) (bool, error)) error {
	total, err := store.CountConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to count conversations: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(out, "No conversations found (0 conversations)\n")
		return nil
	}

	fmt.Fprintf(out, "Starting %s of %d conversations (batch size: %d)\n", verb, total, config.BatchSize)

	tracker := NewProgressTracker(out, total, config.ReportInterval)
	tracker.Start()

	var changed, failed int
	iter := NewConversationIterator(store, config.BatchSize)
	err = iter.ForEach(ctx, func(batch []*core.Conversation) error {
		for _, conv := range batch {
			ok, err := fn(ctx, conv)
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, storage.ErrStoreUnavailable):
				return err
			case err != nil:
				failed++
			case ok:
				changed++
			}
			tracker.Increment(1)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(out)
		return err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(out, "Finished %s. Updated %d of %d conversations in %v (%.1f conversations/s)\n",
		verb, changed, total, elapsed.Round(time.Millisecond), tracker.Rate())

	if failed > 0 {
		return fmt.Errorf("%d conversations failed: %w", failed, ErrIncomplete)
	}
	return nil
}
