package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/embedding"
	"github.com/poiesic/chatvault/storage"
)

const (
	// DefaultK is the number of hits returned when none is requested.
	DefaultK = 10
	// DefaultPerConversation caps the hits taken from one conversation.
	DefaultPerConversation = 3
	// ExcerptRunes bounds the excerpt attached to each hit.
	ExcerptRunes = 240
)

// Retriever answers queries against a store.
type Retriever struct {
	store           storage.Store
	generator       *embedding.Generator
	k               int
	perConversation int
	minSemanticLen  int
	logger          *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithDefaultK sets the hit count used when a search does not pass one.
func WithDefaultK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 {
			return fmt.Errorf("k must be positive, got %d", k)
		}
		r.k = k
		return nil
	}
}

// WithPerConversationCap sets the default number of hits one conversation may contribute.
func WithPerConversationCap(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("per-conversation cap must be positive, got %d", n)
		}
		r.perConversation = n
		return nil
	}
}

// WithMinSemanticQueryLength routes queries shorter than n runes to keyword
// search. Zero disables the fallback.
func WithMinSemanticQueryLength(n int) Option {
	return func(r *Retriever) error {
		r.minSemanticLen = max(n, 0)
		return nil
	}
}

// NewRetriever creates a retriever reading store and embedding queries with generator.
func NewRetriever(store storage.Store, generator *embedding.Generator, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	r := &Retriever{
		store:           store,
		generator:       generator,
		k:               DefaultK,
		perConversation: DefaultPerConversation,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type searchParams struct {
	k               int
	perConversation int
	monitor         SearchMonitor
}

// SearchOption adjusts a single search.
type SearchOption func(*searchParams)

// WithK sets how many hits to return.
func WithK(k int) SearchOption {
	return func(p *searchParams) {
		if k > 0 {
			p.k = k
		}
	}
}

// WithCap sets how many hits one conversation may contribute.
func WithCap(n int) SearchOption {
	return func(p *searchParams) {
		if n > 0 {
			p.perConversation = n
		}
	}
}

// WithMonitor observes the search.
func WithMonitor(m SearchMonitor) SearchOption {
	return func(p *searchParams) {
		if m != nil {
			p.monitor = m
		}
	}
}

// Search returns up to k hits ranked by similarity to query.
// An empty store yields an empty slice. Store errors are returned as is.
func (r *Retriever) Search(ctx context.Context, query string, opts ...SearchOption) ([]core.Hit, error) {
	params := searchParams{k: r.k, perConversation: r.perConversation, monitor: &noopMonitor{}}
	for _, opt := range opts {
		opt(&params)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	params.monitor.Start(query)

	if r.minSemanticLen > 0 && utf8.RuneCountInString(query) < r.minSemanticLen {
		r.logger.Debug("short query, using keyword search", "query", query)
		hits, err := r.SearchText(ctx, query, params.k)
		if err != nil {
			return nil, err
		}
		params.monitor.Finish(hits)
		return hits, nil
	}

	vector, err := r.generator.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	params.monitor.Embedded(r.generator.Model(), len(vector))

	hits, err := r.nearest(ctx, vector, params, nil)
	if err != nil {
		return nil, err
	}
	params.monitor.Finish(hits)
	return hits, nil
}

// nearest admits chunks in score order under the per-conversation cap,
// doubling the candidate window until k hits are admitted or the store is
// exhausted. Conversations in exclude are skipped.
func (r *Retriever) nearest(ctx context.Context, vector []float32, params searchParams, exclude map[string]bool) ([]core.Hit, error) {
	model := r.generator.Model()
	convs := make(map[string]*core.Conversation)

	for window := params.k; ; window *= 2 {
		scored, err := r.store.NearestChunks(ctx, model, vector, window)
		if err != nil {
			r.logger.Error("error querying nearest chunks", "err", err)
			return nil, err
		}
		params.monitor.Candidates(window, scored)

		hits := make([]core.Hit, 0, params.k)
		perConv := make(map[string]int)
		for _, sc := range scored {
			convID := sc.Chunk.ConversationID
			if exclude[convID] {
				continue
			}
			if perConv[convID] >= params.perConversation {
				params.monitor.Capped(sc.Chunk)
				continue
			}

			conv, ok := convs[convID]
			if !ok {
				conv, err = r.store.GetConversation(ctx, convID)
				if err != nil {
					if !errors.Is(err, storage.ErrNotFound) {
						return nil, err
					}
					// Deleted since the scan; its chunks go with it.
					conv = nil
				}
				convs[convID] = conv
			}
			if conv == nil {
				continue
			}

			perConv[convID]++
			hit := core.Hit{
				Conversation: conv,
				Chunk:        sc.Chunk,
				Excerpt:      Excerpt(sc.Chunk.Text, ExcerptRunes),
				Score:        sc.Score,
			}
			hits = append(hits, hit)
			params.monitor.Admitted(hit)
			if len(hits) == params.k {
				return hits, nil
			}
		}

		if len(scored) < window {
			return hits, nil
		}
	}
}

// SearchText returns conversations containing every query keyword as hits
// with a zero score, newest first.
func (r *Retriever) SearchText(ctx context.Context, query string, limit int) ([]core.Hit, error) {
	convs, err := r.store.SearchText(ctx, query, limit)
	if err != nil {
		r.logger.Error("error running keyword search", "err", err)
		return nil, err
	}
	hits := make([]core.Hit, 0, len(convs))
	for _, conv := range convs {
		hits = append(hits, core.Hit{
			Conversation: conv,
			Excerpt:      Excerpt(matchingTurn(conv, query), ExcerptRunes),
		})
	}
	return hits, nil
}

// Related returns up to k conversations closest to the given one, judged by
// the vector of its first chunk.
func (r *Retriever) Related(ctx context.Context, conversationID string, k int) ([]core.Hit, error) {
	if k < 1 {
		k = r.k
	}
	if _, err := r.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	chunks, err := r.store.GetChunks(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	vectors, err := r.store.ChunkVectors(ctx, r.generator.Model(), conversationID)
	if err != nil {
		return nil, err
	}
	var vector []float32
	for _, chunk := range chunks {
		if v, ok := vectors[chunk.ID]; ok {
			vector = v
			break
		}
	}
	if vector == nil {
		return nil, fmt.Errorf("%q: %w", conversationID, ErrNotIndexed)
	}

	params := searchParams{k: k, perConversation: 1, monitor: &noopMonitor{}}
	return r.nearest(ctx, vector, params, map[string]bool{conversationID: true})
}

// matchingTurn returns the first turn holding a query keyword, or the first turn.
func matchingTurn(conv *core.Conversation, query string) string {
	keywords := core.Keywords(query)
	for _, turn := range conv.Turns {
		lower := strings.ToLower(turn.Text)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return turn.Text
			}
		}
	}
	if len(conv.Turns) > 0 {
		return conv.Turns[0].Text
	}
	return ""
}

// Excerpt shortens text to at most n runes, cutting at a word boundary.
func Excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
