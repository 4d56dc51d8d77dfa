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


// Package api serves the vault over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
)

// DefaultMaxBodyBytes bounds import uploads when RouterConfig leaves it unset.
const DefaultMaxBodyBytes int64 = 256 << 20

// Searcher answers search and related-conversation queries.
// *search.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...search.SearchOption) ([]core.Hit, error)
	Related(ctx context.Context, conversationID string, k int) ([]core.Hit, error)
}

// Importer imports export documents.
// *ingestion.Pipeline implements it.
type Importer interface {
	Import(ctx context.Context, src io.Reader, opts ingestion.ImportOptions) (*ingestion.Report, error)
}

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	Store    storage.ConversationRepository
	Searcher Searcher
	Importer Importer // Nil disables POST /imports

	MaxBodyBytes int64
	Logger       *slog.Logger
}

var (
	// ErrStoreRequired is returned when RouterConfig has no store.
	ErrStoreRequired = errors.New("store required")

	// ErrSearcherRequired is returned when RouterConfig has no searcher.
	ErrSearcherRequired = errors.New("searcher required")
)

// NewRouter builds the HTTP handler.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Searcher == nil {
		return nil, ErrSearcherRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	h := &handler{
		store:    cfg.Store,
		searcher: cfg.Searcher,
		importer: cfg.Importer,
		logger:   cfg.Logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Sentry)
	r.Use(AccessLog(h.logger))
	r.Use(MaxBodyBytes(cfg.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/search", h.search)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.listConversations)
		r.Get("/{id}", h.getConversation)
		r.Get("/{id}/related", h.related)
	})

	r.Get("/tags", h.tags)
	r.Get("/tags/{tag}", h.byTag)
	r.Get("/categories", h.categories)
	r.Get("/categories/{category}", h.byCategory)

	if h.importer != nil {
		r.Post("/imports", h.importExport)
	}

	return r, nil
}
