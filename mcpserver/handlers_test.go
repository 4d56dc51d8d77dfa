package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
	"github.com/poiesic/chatvault/storage/badger"
)

// stubSearcher returns fixed hits and records the options it was called with.
type stubSearcher struct {
	hits  []core.Hit
	err   error
	query string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ ...search.SearchOption) ([]core.Hit, error) {
	s.query = query
	return s.hits, s.err
}

func setup(t *testing.T, searcher *stubSearcher) (*Handlers, storage.Store) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.PutConversation(ctx, &core.Conversation{
		ID:        "c1",
		Title:     "Tuning Postgres",
		CreatedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
		Turns: []core.Turn{
			{Role: core.RoleUser, Text: "What does work_mem control?", Position: 0},
			{Role: core.RoleAssistant, Text: "Memory per sort or hash operation.", Position: 1},
		},
	}))
	require.NoError(t, store.UpdateLabels(ctx, "c1", core.Labels{Tags: []string{"postgres", "databases"}, Summary: "Postgres memory settings."}))
	require.NoError(t, store.PutConversation(ctx, &core.Conversation{
		ID:    "c2",
		Title: "Index types",
		Turns: []core.Turn{{Role: core.RoleUser, Text: "When is a GIN index useful?", Position: 0}},
	}))
	require.NoError(t, store.UpdateLabels(ctx, "c2", core.Labels{Tags: []string{"postgres"}}))

	s, err := New(store, searcher, nil)
	require.NoError(t, err)
	return s.handlers, store
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return tc.Text
}

func TestNew_Requirements(t *testing.T) {
	_, err := New(nil, &stubSearcher{}, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	_, err = New(store, nil, nil)
	assert.ErrorIs(t, err, ErrSearcherRequired)
}

func TestSearchConversations(t *testing.T) {
	ctx := context.Background()
	searcher := &stubSearcher{}
	h, store := setup(t, searcher)

	conv, err := store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	searcher.hits = []core.Hit{{Conversation: conv, Excerpt: "Memory per sort", Score: 0.91}}

	result, err := h.SearchConversations(ctx, call(map[string]any{"query": "work_mem", "k": float64(5)}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "work_mem", searcher.query)

	var got []searchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ConversationID)
	assert.Equal(t, "2024-03-09", got[0].Date)
	assert.Equal(t, []string{"postgres", "databases"}, got[0].Tags)

	t.Run("missing query", func(t *testing.T) {
		result, err := h.SearchConversations(ctx, call(map[string]any{}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("search error", func(t *testing.T) {
		searcher.err = errors.New("embedding provider down")
		defer func() { searcher.err = nil }()
		result, err := h.SearchConversations(ctx, call(map[string]any{"query": "anything"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, text(t, result), "embedding provider down")
	})
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()
	h, _ := setup(t, &stubSearcher{})

	result, err := h.GetConversation(ctx, call(map[string]any{"id": "c1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	transcript := text(t, result)
	assert.Contains(t, transcript, "# Tuning Postgres")
	assert.Contains(t, transcript, "Date: 2024-03-09")
	assert.Contains(t, transcript, "Summary: Postgres memory settings.")
	assert.Contains(t, transcript, "user: What does work_mem control?")
	assert.Contains(t, transcript, "assistant: Memory per sort or hash operation.")

	result, err = h.GetConversation(ctx, call(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListTags(t *testing.T) {
	h, _ := setup(t, &stubSearcher{})

	result, err := h.ListTags(context.Background(), call(nil))
	require.NoError(t, err)

	var got []tagCount
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))
	assert.Equal(t, []tagCount{{Tag: "postgres", Count: 2}, {Tag: "databases", Count: 1}}, got)
}

func TestConversationsByTag(t *testing.T) {
	h, _ := setup(t, &stubSearcher{})

	result, err := h.ConversationsByTag(context.Background(), call(map[string]any{"tag": "Databases"}))
	require.NoError(t, err)

	var got []conversationSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)

	result, err = h.ConversationsByTag(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
