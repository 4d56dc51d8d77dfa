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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/chatvault/chunker"
	"github.com/poiesic/chatvault/classify"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/embedding"
	"github.com/poiesic/chatvault/events"
	"github.com/poiesic/chatvault/retry"
	"github.com/poiesic/chatvault/storage"
)

const (
	// DefaultStoreAttempts is how often a store call is tried while the store is unavailable.
	DefaultStoreAttempts = 5
	// DefaultStoreBaseDelay is the first backoff between store attempts.
	DefaultStoreBaseDelay = 200 * time.Millisecond
)

// Pipeline imports conversations: it normalizes, stores, chunks and embeds
// them, then classifies them in the background.
type Pipeline struct {
	store        storage.Store
	generator    *embedding.Generator
	normalizer   *Normalizer
	chunker      *chunker.Chunker
	classifier   classify.Classifier
	publisher    events.Publisher
	pool         *ants.Pool
	classifyPool *ants.Pool
	classifyWG   sync.WaitGroup
	convLocks    keyedMutex
	storeRetry   retry.Policy
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many conversations are processed at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithClassifyPoolSize sets how many classifications run at once. Default is 2.
func WithClassifyPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.classifyPool != nil {
			p.classifyPool.Release()
		}
		p.classifyPool = pool
		return nil
	}
}

// WithChunker sets the chunker. Default is chunker.New().
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithNormalizer sets the normalizer. Default is NewNormalizer().
func WithNormalizer(n *Normalizer) Option {
	return func(p *Pipeline) error {
		if n != nil {
			p.normalizer = n
		}
		return nil
	}
}

// WithClassifier sets the classifier run after a conversation is stored.
// Default is classify.Noop.
func WithClassifier(c classify.Classifier) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.classifier = c
		}
		return nil
	}
}

// WithPublisher sets where events go. Default is events.Noop.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) error {
		if pub != nil {
			p.publisher = pub
		}
		return nil
	}
}

// WithStoreRetry sets the backoff for store calls failing with storage.ErrStoreUnavailable.
func WithStoreRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		p.storeRetry.MaxAttempts = maxAttempts
		p.storeRetry.BaseDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline writing to store and embedding with generator.
func NewPipeline(store storage.Store, generator *embedding.Generator, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	p := &Pipeline{
		store:      store,
		generator:  generator,
		normalizer: NewNormalizer(),
		chunker:    chunker.New(),
		classifier: classify.Noop{},
		publisher:  events.Noop{},
		storeRetry: retry.Policy{
			MaxAttempts: DefaultStoreAttempts,
			BaseDelay:   DefaultStoreBaseDelay,
			Jitter:      true,
			Retryable: func(err error) bool {
				return errors.Is(err, storage.ErrStoreUnavailable)
			},
		},
		logger: slog.Default(),
	}

	defaults := []Option{
		WithPoolSize(max(runtime.NumCPU()/2, 1)),
		WithClassifyPoolSize(2),
	}
	for _, opt := range append(defaults, opts...) {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Model returns the embedding model chunks are indexed with.
func (p *Pipeline) Model() string {
	return p.generator.Model()
}

// ImportOptions holds per-call import settings.
type ImportOptions struct {
	// Policy decides what happens to conversations already stored. Empty means skip.
	Policy DuplicatePolicy
}

// Import decodes an export document and imports every conversation in it.
// Records are processed concurrently. Cancellation is honored between
// conversations; a conversation that started always finishes its writes.
// The report is returned even when decoding fails part way.
func (p *Pipeline) Import(ctx context.Context, src io.Reader, opts ImportOptions) (*Report, error) {
	c := newCollector()
	var wg sync.WaitGroup

	err := DecodeExport(src, func(index int, raw RawConversation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		conv, err := p.normalizer.Normalize(index, raw)
		if err != nil {
			c.add(Outcome{Index: index, Err: err})
			return nil
		}
		return p.submit(ctx, &wg, c, index, conv, opts)
	})
	wg.Wait()

	report := p.finish(ctx, c)
	return report, err
}

// ImportConversations imports conversations that were already extracted.
func (p *Pipeline) ImportConversations(ctx context.Context, raws []RawConversation, opts ImportOptions) (*Report, error) {
	c := newCollector()
	var wg sync.WaitGroup

	var err error
	for index, raw := range raws {
		if err = ctx.Err(); err != nil {
			break
		}
		conv, nerr := p.normalizer.Normalize(index, raw)
		if nerr != nil {
			c.add(Outcome{Index: index, Err: nerr})
			continue
		}
		if err = p.submit(ctx, &wg, c, index, conv, opts); err != nil {
			break
		}
	}
	wg.Wait()

	return p.finish(ctx, c), err
}

func (p *Pipeline) submit(ctx context.Context, wg *sync.WaitGroup, c *collector, index int, conv *core.Conversation, opts ImportOptions) error {
	wg.Add(1)
	err := p.pool.Submit(func() {
		defer wg.Done()
		if err := ctx.Err(); err != nil {
			c.add(Outcome{Index: index, ConversationID: conv.ID, Err: err})
			return
		}
		c.add(p.importOne(context.WithoutCancel(ctx), index, conv, opts.Policy))
	})
	if err != nil {
		wg.Done()
		return fmt.Errorf("submitting conversation %d: %w", index, err)
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, c *collector) *Report {
	report := c.report()
	p.logger.Info("import finished",
		"import", report.ImportID,
		"total", report.Total,
		"imported", report.Imported,
		"merged", report.Merged,
		"overwritten", report.Overwritten,
		"skipped", report.Skipped,
		"resumed", report.Resumed,
		"failed", report.Failed,
		"duration", report.Duration())

	err := p.publisher.Publish(context.WithoutCancel(ctx), events.ImportCompleted{
		ImportID:    report.ImportID,
		Total:       report.Total,
		Imported:    report.Imported,
		Merged:      report.Merged,
		Overwritten: report.Overwritten,
		Skipped:     report.Skipped,
		Resumed:     report.Resumed,
		Failed:      report.Failed,
		FinishedAt:  report.FinishedAt,
	})
	if err != nil {
		p.logger.Warn("error publishing import event", "err", err)
	}
	return report
}

// importOne stores one conversation, indexes it and queues it for classification.
// Records sharing an ID are serialized so each resolves against the other's write.
func (p *Pipeline) importOne(ctx context.Context, index int, incoming *core.Conversation, policy DuplicatePolicy) Outcome {
	unlock := p.convLocks.Lock(incoming.ID)
	outcome, indexed := p.storeAndIndex(ctx, index, incoming, policy)
	unlock()

	if indexed != nil && indexed.Labels().IsEmpty() {
		p.queueClassification(indexed)
	}
	return outcome
}

// storeAndIndex applies the duplicate policy and indexes the result. The
// returned conversation is nil unless it was indexed.
func (p *Pipeline) storeAndIndex(ctx context.Context, index int, incoming *core.Conversation, policy DuplicatePolicy) (Outcome, *core.Conversation) {
	outcome := Outcome{Index: index, ConversationID: incoming.ID}
	logger := p.logger.With("conversation", incoming.ID)

	var existing *core.Conversation
	err := p.withStore(ctx, func() error {
		var err error
		existing, err = p.store.GetConversation(ctx, incoming.ID)
		return err
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		outcome.Err = err
		return outcome, nil
	}

	conv, action := ResolveDuplicate(existing, incoming, policy)
	outcome.Action = action

	if action == ActionSkipped {
		if conv.IsEmbeddedWith(p.Model()) {
			logger.Debug("conversation already stored, skipping")
			return outcome, nil
		}
		// Stored but never fully embedded: finish the index.
	} else {
		if err := p.withStore(ctx, func() error { return p.store.PutConversation(ctx, conv) }); err != nil {
			outcome.Err = err
			return outcome, nil
		}
	}

	chunks, err := p.Index(ctx, conv)
	if err != nil {
		outcome.Err = err
		return outcome, nil
	}

	p.publishIndexed(ctx, conv, chunks, action)
	logger.Debug("conversation indexed", "action", action, "chunks", chunks)
	return outcome, conv
}

// Index chunks and embeds a stored conversation and writes the chunk set.
// Vectors staged by an earlier partial failure are reused. When embedding
// fails part way the successful vectors are staged and the returned error is
// an *embedding.EmbeddingFailure. It returns the number of chunks written.
func (p *Pipeline) Index(ctx context.Context, conv *core.Conversation) (int, error) {
	model := p.Model()

	var chunks []*core.Chunk
	for chunk := range p.chunker.Chunks(conv) {
		chunks = append(chunks, chunk)
	}
	ids := make([]core.ID, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}

	var staged map[core.ID][]float32
	err := p.withStore(ctx, func() error {
		var err error
		staged, err = p.store.StagedEmbeddings(ctx, model, ids)
		return err
	})
	if err != nil {
		return 0, err
	}

	var (
		items   []embedding.Item
		pending []*core.Chunk
	)
	for _, chunk := range chunks {
		if vector, ok := staged[chunk.ID]; ok {
			chunk.Vector = vector
			continue
		}
		items = append(items, embedding.Item{ID: chunk.ID, Text: chunk.Text})
		pending = append(pending, chunk)
	}

	if len(items) > 0 {
		result, err := p.generator.Embed(ctx, items)
		if result == nil {
			return 0, err
		}
		fresh := make(map[core.ID][]float32)
		for i, vector := range result.Vectors {
			if vector == nil {
				continue
			}
			pending[i].Vector = vector
			fresh[pending[i].ID] = vector
		}
		if err != nil {
			if len(fresh) > 0 {
				serr := p.withStore(ctx, func() error {
					return p.store.StageEmbeddings(ctx, model, conv.ID, fresh)
				})
				if serr != nil {
					p.logger.Error("error staging embeddings", "conversation", conv.ID, "err", serr)
				}
			}
			return 0, err
		}
		if result.Retries > 0 {
			p.logger.Debug("embedding needed retries", "conversation", conv.ID, "retries", result.Retries)
		}
	}

	for _, chunk := range chunks {
		chunk.Model = model
	}
	err = p.withStore(ctx, func() error {
		return p.store.PutChunks(ctx, conv.ID, model, chunks)
	})
	if err != nil {
		return 0, err
	}
	if !conv.IsEmbeddedWith(model) {
		conv.EmbeddedWith = append(conv.EmbeddedWith, model)
	}
	return len(chunks), nil
}

// ResumePending indexes up to limit conversations not yet embedded with the
// active model. A limit <= 0 resumes all of them.
func (p *Pipeline) ResumePending(ctx context.Context, limit int) (*Report, error) {
	var pending []*core.Conversation
	err := p.withStore(ctx, func() error {
		var err error
		pending, err = p.store.PendingConversations(ctx, p.Model(), limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := newCollector()
	var wg sync.WaitGroup
	for index, conv := range pending {
		if err = ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		serr := p.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				c.add(Outcome{Index: index, ConversationID: conv.ID, Err: err})
				return
			}
			wctx := context.WithoutCancel(ctx)
			outcome := Outcome{Index: index, ConversationID: conv.ID, Action: ActionResumed}
			unlock := p.convLocks.Lock(conv.ID)
			chunks, err := p.Index(wctx, conv)
			unlock()
			if err != nil {
				outcome.Err = err
			} else {
				if conv.Labels().IsEmpty() {
					p.queueClassification(conv)
				}
				p.publishIndexed(wctx, conv, chunks, ActionResumed)
			}
			c.add(outcome)
		})
		if serr != nil {
			wg.Done()
			err = fmt.Errorf("submitting conversation %q: %w", conv.ID, serr)
			break
		}
	}
	wg.Wait()

	return p.finish(ctx, c), err
}

// queueClassification labels conv in the background. Failures are logged
// and leave the conversation untagged.
func (p *Pipeline) queueClassification(conv *core.Conversation) {
	if _, ok := p.classifier.(classify.Noop); ok {
		return
	}
	p.classifyWG.Add(1)
	err := p.classifyPool.Submit(func() {
		defer p.classifyWG.Done()
		ctx := context.Background()
		labels, err := p.classifier.Classify(ctx, conv)
		if err != nil {
			p.logger.Warn("classification failed, leaving conversation untagged",
				"conversation", conv.ID, "err", err)
			return
		}
		if labels.IsEmpty() {
			return
		}
		unlock := p.convLocks.Lock(conv.ID)
		err = p.withStore(ctx, func() error {
			return p.store.UpdateLabels(ctx, conv.ID, labels)
		})
		unlock()
		if err != nil {
			p.logger.Error("error storing labels", "conversation", conv.ID, "err", err)
		}
	})
	if err != nil {
		p.classifyWG.Done()
		p.logger.Error("error queueing classification", "conversation", conv.ID, "err", err)
	}
}

func (p *Pipeline) publishIndexed(ctx context.Context, conv *core.Conversation, chunks int, action Action) {
	err := p.publisher.Publish(ctx, events.ConversationIndexed{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Model:          p.Model(),
		Chunks:         chunks,
		Action:         string(action),
		IndexedAt:      time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("error publishing event", "conversation", conv.ID, "err", err)
	}
}

// withStore runs a store call, retrying while the store is unavailable.
func (p *Pipeline) withStore(ctx context.Context, op func() error) error {
	_, err := p.storeRetry.Do(ctx, op)
	return err
}

// Wait blocks until queued classifications finish.
func (p *Pipeline) Wait() {
	p.classifyWG.Wait()
}

// Release waits for queued classifications and frees the worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
	if p.classifyPool != nil {
		p.classifyPool.Release()
	}
}
