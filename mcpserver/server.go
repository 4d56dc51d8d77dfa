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


// Package mcpserver exposes the vault to MCP clients over stdio.
package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
)

const (
	serverName = "chatvault"
	// Version is reported to MCP clients.
	Version = "0.1.0"
)

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")
)

// Searcher runs semantic queries.
// *search.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...search.SearchOption) ([]core.Hit, error)
}

// Server is an MCP server with the chatvault tools registered.
type Server struct {
	mcp      *server.MCPServer
	handlers *Handlers
	logger   *slog.Logger
}

// New creates the server and registers its tools.
func New(store storage.ConversationRepository, searcher Searcher, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	s := server.NewMCPServer(serverName, Version, server.WithToolCapabilities(false))
	handlers := RegisterTools(s, store, searcher, logger)
	return &Server{mcp: s, handlers: handlers, logger: logger}, nil
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP on in and out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server starting on stdio")
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
