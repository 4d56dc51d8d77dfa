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


package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/retry"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of texts sent per provider call.
	DefaultBatchSize = 32
	// DefaultMaxAttempts is the number of tries per batch, including the first.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first retry backoff.
	DefaultBaseDelay = 500 * time.Millisecond
)

// Item is one text to embed, keyed by the chunk it belongs to.
type Item struct {
	ID   core.ID
	Text string
}

// Result holds one vector per requested item, in request order.
// Slots of failed batches are nil.
type Result struct {
	Vectors [][]float32
	Retries int
}

// Generator turns texts into vectors with batching, bounded concurrency,
// rate limiting and retries of transient provider errors.
type Generator struct {
	embedder  ai.Embedder
	batchSize int
	pool      *ants.Pool
	limiter   *rate.Limiter
	policy    retry.Policy
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithBatchSize sets the texts per provider call. It is lowered to the
// provider's own limit when the embedder reports one.
func WithBatchSize(size int) Option {
	return func(g *Generator) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		g.batchSize = size
		return nil
	}
}

// WithMaxConcurrency sets how many batches may be in flight at once.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithMaxConcurrency(n int) Option {
	return func(g *Generator) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		if g.pool != nil {
			g.pool.Release()
		}
		g.pool = pool
		return nil
	}
}

// WithRateLimit limits provider calls to rps per second with the given burst.
// A non-positive rps removes the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Generator) error {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithRetry sets the attempts per batch and the first backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(g *Generator) error {
		if maxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		g.policy.MaxAttempts = maxAttempts
		g.policy.BaseDelay = baseDelay
		return nil
	}
}

// WithJitter randomizes backoff delays.
func WithJitter(enabled bool) Option {
	return func(g *Generator) error {
		g.policy.Jitter = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a Generator around embedder.
func NewGenerator(embedder ai.Embedder, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Generator{
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		policy: retry.Policy{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultBaseDelay,
			Retryable:   ai.IsTransient,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			g.Release()
			return nil, err
		}
	}
	if g.pool == nil {
		if err := WithMaxConcurrency(runtime.NumCPU())(g); err != nil {
			return nil, err
		}
	}
	if sizer, ok := embedder.(ai.BatchSizer); ok {
		if limit := sizer.MaxBatchSize(); limit > 0 && limit < g.batchSize {
			g.batchSize = limit
		}
	}
	g.logger = g.logger.With("component", "embedding", "model", embedder.Model())
	return g, nil
}

// Model returns the embedding model identifier vectors are versioned by.
func (g *Generator) Model() string {
	return g.embedder.Model()
}

// BatchSize returns the effective texts per provider call.
func (g *Generator) BatchSize() int {
	return g.batchSize
}

// Embed returns one vector per item in item order. When some batches fail the
// vectors of the others are still returned and the error is an
// *EmbeddingFailure naming the failed items.
func (g *Generator) Embed(ctx context.Context, items []Item) (*Result, error) {
	result := &Result{Vectors: make([][]float32, len(items))}
	if len(items) == 0 {
		return result, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		retries  atomic.Int64
		failure  *EmbeddingFailure
		failures int
	)

	for start := 0; start < len(items); start += g.batchSize {
		end := min(start+g.batchSize, len(items))
		batch := items[start:end]
		offset := start

		wg.Add(1)
		task := func() {
			defer wg.Done()
			vectors, attempts, err := g.embedBatch(ctx, batch, &retries)
			if err == nil {
				copy(result.Vectors[offset:], vectors)
				return
			}

			g.logger.Warn("embedding batch failed", "items", len(batch), "attempts", attempts, "err", err)
			mu.Lock()
			defer mu.Unlock()
			failures++
			if failure == nil {
				failure = &EmbeddingFailure{Model: g.Model(), Err: err}
			}
			failure.Attempts = max(failure.Attempts, attempts)
			for _, item := range batch {
				failure.FailedChunkIDs = append(failure.FailedChunkIDs, item.ID)
			}
		}
		if err := g.pool.Submit(task); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submitting embedding batch: %w", err)
		}
	}
	wg.Wait()

	result.Retries = int(retries.Load())
	if failure != nil {
		g.logger.Error("embedding incomplete", "failed_batches", failures, "failed_items", len(failure.FailedChunkIDs))
		return result, failure
	}
	return result, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []Item, retries *atomic.Int64) ([][]float32, int, error) {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.Text
	}

	policy := g.policy
	policy.OnRetry = func(attempt int, err error) {
		retries.Add(1)
		g.logger.Debug("retrying embedding batch", "attempt", attempt, "err", err)
	}

	var vectors [][]float32
	attempts, err := policy.Do(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := g.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if err := checkBatch(out, len(texts)); err != nil {
			return err
		}
		vectors = out
		return nil
	})
	return vectors, attempts, err
}

// checkBatch verifies the provider returned n vectors of one non-zero dimension.
func checkBatch(vectors [][]float32, n int) error {
	if len(vectors) != n {
		return fmt.Errorf("%w: expected %d, received %d", ErrResultMismatch, n, len(vectors))
	}
	if n == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, batch has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// EmbedQuery embeds a single query text on the same limiter and retry path.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	_, err := g.policy.Do(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := g.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return fmt.Errorf("%w: empty query vector", ErrDimensionMismatch)
		}
		vector = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

// Release frees the worker pool. The generator must not be used afterwards.
func (g *Generator) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// IsFailure reports whether err carries an *EmbeddingFailure and returns it.
func IsFailure(err error) (*EmbeddingFailure, bool) {
	var failure *EmbeddingFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
