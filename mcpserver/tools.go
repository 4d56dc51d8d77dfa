package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/poiesic/chatvault/storage"
)

// RegisterTools registers the chatvault tools with s.
func RegisterTools(s *server.MCPServer, store storage.ConversationRepository, searcher Searcher, logger *slog.Logger) *Handlers {
	h := &Handlers{store: store, searcher: searcher, logger: logger}

	s.AddTool(mcp.Tool{
		Name:        "search_conversations",
		Description: "Search past chat conversations by meaning. Returns the best matching excerpts with their conversation IDs.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for, in natural language",
				},
				"k": map[string]any{
					"type":        "number",
					"description": "Maximum number of results (default: 10)",
					"default":     10,
				},
				"per_conversation": map[string]any{
					"type":        "number",
					"description": "Maximum results taken from one conversation (default: 3)",
					"default":     3,
				},
			},
			Required: []string{"query"},
		},
	}, h.SearchConversations)

	s.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Get the full transcript of a conversation by ID.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "Conversation ID from a search result",
				},
			},
			Required: []string{"id"},
		},
	}, h.GetConversation)

	s.AddTool(mcp.Tool{
		Name:        "list_tags",
		Description: "List every tag with the number of conversations carrying it, most used first.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.ListTags)

	s.AddTool(mcp.Tool{
		Name:        "conversations_by_tag",
		Description: "List the conversations carrying a tag, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tag": map[string]any{
					"type":        "string",
					"description": "Tag to filter by, case-insensitive",
				},
			},
			Required: []string{"tag"},
		},
	}, h.ConversationsByTag)

	return h
}
