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


// Package chatvault wires the knowledge base together from a configuration.
//
// A Vault owns the store, the AI provider, the ingestion pipeline and the
// retriever. The CLI, the HTTP API and the MCP server all start from one.
package chatvault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/ai/hosted"
	"github.com/poiesic/chatvault/ai/openai"
	"github.com/poiesic/chatvault/api"
	"github.com/poiesic/chatvault/chunker"
	"github.com/poiesic/chatvault/classify"
	"github.com/poiesic/chatvault/config"
	"github.com/poiesic/chatvault/embedding"
	"github.com/poiesic/chatvault/events"
	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/mcpserver"
	"github.com/poiesic/chatvault/reembed"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/source"
	"github.com/poiesic/chatvault/storage"
	"github.com/poiesic/chatvault/storage/badger"
	"github.com/poiesic/chatvault/storage/postgres"
)

// Vault is an open knowledge base.
type Vault struct {
	cfg        *config.Config
	store      storage.Store
	provider   ai.AIProvider
	generator  *embedding.Generator
	classifier classify.Classifier
	publisher  events.Publisher
	pipeline   *ingestion.Pipeline
	retriever  *search.Retriever
	opener     *source.Opener
	logger     *slog.Logger
}

// Option overrides a component Open would otherwise build from the configuration.
type Option func(*openOptions)

type openOptions struct {
	store     storage.Store
	provider  ai.AIProvider
	publisher events.Publisher
	s3        source.ObjectGetter
	logger    *slog.Logger
}

// WithStore uses an already open store. The Vault closes it.
func WithStore(store storage.Store) Option {
	return func(o *openOptions) {
		o.store = store
	}
}

// WithProvider uses the given AI provider instead of the configured one.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *openOptions) {
		o.provider = provider
	}
}

// WithPublisher sends ingestion events to pub instead of the configured NATS server.
func WithPublisher(pub events.Publisher) Option {
	return func(o *openOptions) {
		o.publisher = pub
	}
}

// WithS3Client sets the client used for s3:// import locations.
func WithS3Client(client source.ObjectGetter) Option {
	return func(o *openOptions) {
		o.s3 = client
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// Open builds a Vault from cfg. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Vault, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	v := &Vault{
		cfg:       cfg,
		store:     o.store,
		provider:  o.provider,
		publisher: o.publisher,
		logger:    o.logger,
	}
	if err := v.open(ctx, o); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *Vault) open(ctx context.Context, o *openOptions) error {
	var err error
	if v.store == nil {
		if v.store, err = OpenStore(ctx, v.cfg.Storage); err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
	}

	if v.provider == nil {
		if v.provider, err = NewProvider(v.cfg.AIConfig()); err != nil {
			return fmt.Errorf("failed to create AI provider: %w", err)
		}
	}

	if v.publisher == nil {
		if v.cfg.Events.URL == "" {
			v.publisher = events.Noop{}
		} else {
			pub, err := events.NewNATSPublisher(v.cfg.Events.URL, v.cfg.Events.Token, v.cfg.Events.Prefix, v.logger)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			v.publisher = pub
		}
	}

	emb := v.cfg.Embedding
	v.generator, err = embedding.NewGenerator(v.provider.Embedder(),
		embedding.WithBatchSize(emb.BatchSize),
		embedding.WithMaxConcurrency(emb.Concurrency),
		embedding.WithRateLimit(emb.RateLimit, emb.Burst),
		embedding.WithRetry(emb.MaxAttempts, emb.RetryDelay.Duration),
		embedding.WithJitter(true),
		embedding.WithLogger(v.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create embedding generator: %w", err)
	}

	v.classifier, err = classify.New(classify.Kind(v.cfg.Import.Classifier),
		classify.WithAIClassifier(v.provider.Classifier()),
		classify.WithCategories(v.cfg.Import.Categories...),
		classify.WithMaxTags(v.cfg.AI.MaxTags),
		classify.WithLogger(v.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	normalizer := ingestion.NewNormalizer()
	if v.cfg.Import.DefaultTitle != "" {
		normalizer.DefaultTitle = v.cfg.Import.DefaultTitle
	}
	v.pipeline, err = ingestion.NewPipeline(v.store, v.generator,
		ingestion.WithPoolSize(v.cfg.Import.Workers),
		ingestion.WithChunker(chunker.New(chunker.WithBudget(v.cfg.Import.ChunkBudget))),
		ingestion.WithNormalizer(normalizer),
		ingestion.WithClassifier(v.classifier),
		ingestion.WithPublisher(v.publisher),
		ingestion.WithLogger(v.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}

	v.retriever, err = search.NewRetriever(v.store, v.generator,
		search.WithDefaultK(v.cfg.Search.K),
		search.WithPerConversationCap(v.cfg.Search.PerConversation),
		search.WithMinSemanticQueryLength(v.cfg.Search.MinSemanticQueryLength),
		search.WithLogger(v.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	s3Client := o.s3
	if s3Client == nil && v.cfg.S3Enabled() {
		client, err := source.NewS3Client(ctx, v.cfg.S3Client())
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s3Client = client
	}
	openerOpts := []source.Option{source.WithLogger(v.logger)}
	if s3Client != nil {
		openerOpts = append(openerOpts, source.WithS3Client(s3Client))
	}
	v.opener = source.NewOpener(openerOpts...)
	return nil
}

// OpenStore opens the configured storage backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return postgres.Open(ctx, postgres.Config{URL: cfg.PostgresURL, MaxConns: cfg.MaxConns})
	case "badger", "":
		return badger.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// NewProvider returns the hosted OpenAI provider for the openai provider name
// and the OpenAI-compatible local provider otherwise.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if cfg.Provider == ai.ProviderOpenAI {
		return hosted.NewProvider(cfg)
	}
	return openai.NewProvider(cfg)
}

// Close waits for background classification, then releases every component.
func (v *Vault) Close() error {
	var errs []error
	if v.pipeline != nil {
		v.pipeline.Wait()
		v.pipeline.Release()
	}
	if v.generator != nil {
		v.generator.Release()
	}
	if v.publisher != nil {
		if err := v.publisher.Close(); err != nil {
			v.logger.Error("error closing event publisher", "err", err)
			errs = append(errs, err)
		}
	}
	if v.provider != nil {
		if err := v.provider.Close(); err != nil {
			v.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if v.store != nil {
		if err := v.store.Close(); err != nil {
			v.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the vault was opened with.
func (v *Vault) Config() *config.Config {
	return v.cfg
}

// Store returns the open store.
func (v *Vault) Store() storage.Store {
	return v.store
}

// Pipeline returns the ingestion pipeline.
func (v *Vault) Pipeline() *ingestion.Pipeline {
	return v.pipeline
}

// Retriever returns the semantic retriever.
func (v *Vault) Retriever() *search.Retriever {
	return v.retriever
}

// Import opens location and imports it. An empty policy uses the configured one.
func (v *Vault) Import(ctx context.Context, location, policy string) (*ingestion.Report, error) {
	if policy == "" {
		policy = v.cfg.Import.Policy
	}
	p, err := ingestion.ParseDuplicatePolicy(policy)
	if err != nil {
		return nil, err
	}

	rc, err := v.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return v.pipeline.Import(ctx, rc, ingestion.ImportOptions{Policy: p})
}

// NewReembedder returns a reembedder that indexes with the configured model.
func (v *Vault) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(v.store, v.pipeline, cfg, progress, v.logger)
}

// NewRetagger returns a retagger using the configured classifier.
func (v *Vault) NewRetagger(cfg *reembed.Config, progress io.Writer) (*reembed.Retagger, error) {
	return reembed.NewRetagger(v.store, v.classifier, cfg, progress, v.logger)
}

// Handler returns the HTTP API.
func (v *Vault) Handler() (http.Handler, error) {
	return api.NewRouter(api.RouterConfig{
		Store:        v.store,
		Searcher:     v.retriever,
		Importer:     v.pipeline,
		MaxBodyBytes: v.cfg.Server.MaxImportBytes,
		Logger:       v.logger,
	})
}

// MCPServer returns the MCP tool server.
func (v *Vault) MCPServer() (*mcpserver.Server, error) {
	return mcpserver.New(v.store, v.retriever, v.logger)
}
