package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chatvault/ai/mock"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/embedding"
	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
	"github.com/poiesic/chatvault/storage/badger"
)

const exportDoc = `[
 {"id": "c1", "title": "Sourdough", "create_time": 1700000000, "messages": [
   {"role": "user", "content": "How long should sourdough proof?"},
   {"role": "assistant", "content": "Usually four to twelve hours depending on temperature."}]},
 {"id": "c2", "title": "Kubernetes", "create_time": 1700100000, "messages": [
   {"role": "user", "content": "How do I restart a deployment?"},
   {"role": "assistant", "content": "Use kubectl rollout restart deployment/name."}]},
 {"id": "c3", "title": "Go generics", "create_time": 1700200000, "messages": [
   {"role": "user", "content": "Can methods have type parameters?"},
   {"role": "assistant", "content": "No, only functions and types can."}]}
]`

type testServer struct {
	store   storage.Store
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	generator, err := embedding.NewGenerator(&mock.MockEmbedder{ModelName: "test-model", Dimension: 16})
	require.NoError(t, err)
	t.Cleanup(generator.Release)

	pipeline, err := ingestion.NewPipeline(store, generator)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	retriever, err := search.NewRetriever(store, generator)
	require.NoError(t, err)

	handler, err := NewRouter(RouterConfig{
		Store:        store,
		Searcher:     retriever,
		Importer:     pipeline,
		MaxBodyBytes: 1 << 20,
	})
	require.NoError(t, err)
	return &testServer{store: store, handler: handler}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Data
}

func (s *testServer) importDoc(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/imports", exportDoc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestNewRouter_Requirements(t *testing.T) {
	_, err := NewRouter(RouterConfig{})
	assert.ErrorIs(t, err, ErrStoreRequired)

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	_, err = NewRouter(RouterConfig{Store: store})
	assert.ErrorIs(t, err, ErrSearcherRequired)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, map[string]string{"status": "ok"}, decodeData[map[string]string](t, rec))
}

func TestImport(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/imports", exportDoc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeData[ingestion.Report](t, rec)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Imported)
	assert.NotEmpty(t, report.ImportID)

	t.Run("duplicates are skipped by default", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/imports", exportDoc)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, decodeData[ingestion.Report](t, rec).Skipped)
	})

	t.Run("overwrite policy", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/imports?policy=overwrite", exportDoc)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, decodeData[ingestion.Report](t, rec).Overwritten)
	})

	t.Run("unknown policy", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/imports?policy=replace", exportDoc)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not an export", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/imports", `"hello"`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed records are reported", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/imports", `[{"id": "bad", "messages": [{"content": "no role"}]}]`)
		require.Equal(t, http.StatusOK, rec.Code)
		report := decodeData[ingestion.Report](t, rec)
		assert.Equal(t, 1, report.Failed)
		require.Len(t, report.Outcomes, 1)
		assert.NotEmpty(t, report.Outcomes[0].Error)
	})

	t.Run("body too large", func(t *testing.T) {
		big := "[" + strings.Repeat(" ", 2<<20) + "]"
		rec := s.do(t, http.MethodPost, "/imports", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestConversations(t *testing.T) {
	s := newTestServer(t)
	s.importDoc(t)

	t.Run("list is newest first", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/conversations?limit=2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		page := decodeData[ListResponse](t, rec)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Conversations, 2)
		assert.Equal(t, "c3", page.Conversations[0].ID)
		assert.Equal(t, "c2", page.Conversations[1].ID)
		assert.Empty(t, page.Conversations[0].Turns)
		assert.Equal(t, 2, page.Conversations[0].TurnCount)
	})

	t.Run("offset", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/conversations?offset=2&limit=2", "")
		page := decodeData[ListResponse](t, rec)
		require.Len(t, page.Conversations, 1)
		assert.Equal(t, "c1", page.Conversations[0].ID)
	})

	t.Run("bad paging", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/conversations?limit=x", "").Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/conversations?offset=-1", "").Code)
	})

	t.Run("get with turns", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/conversations/c2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		conv := decodeData[ConversationResponse](t, rec)
		assert.Equal(t, "Kubernetes", conv.Title)
		require.Len(t, conv.Turns, 2)
		assert.Equal(t, "user", conv.Turns[0].Role)
		assert.Equal(t, "assistant", conv.Turns[1].Role)
		require.NotNil(t, conv.CreatedAt)
		assert.Equal(t, time.Unix(1700100000, 0).UTC(), conv.CreatedAt.UTC())
	})

	t.Run("missing", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/conversations/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	s.importDoc(t)

	rec := s.do(t, http.MethodGet, "/search?q=restart+a+deployment&k=2&per_conversation=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hits := decodeData[[]HitResponse](t, rec)
	require.Len(t, hits, 2)
	assert.NotEqual(t, hits[0].Conversation.ID, hits[1].Conversation.ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.NotNil(t, hits[0].ChunkSeq)

	t.Run("missing query", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/search", "").Code)
	})

	t.Run("bad k", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/search?q=x&k=abc", "").Code)
	})
}

func TestRelated(t *testing.T) {
	s := newTestServer(t)
	s.importDoc(t)

	rec := s.do(t, http.MethodGet, "/conversations/c1/related?k=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hits := decodeData[[]HitResponse](t, rec)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.NotEqual(t, "c1", hit.Conversation.ID)
	}

	rec = s.do(t, http.MethodGet, "/conversations/nope/related", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLabels(t *testing.T) {
	s := newTestServer(t)
	s.importDoc(t)
	ctx := context.Background()
	require.NoError(t, s.store.UpdateLabels(ctx, "c2", core.Labels{Tags: []string{"kubernetes", "devops"}, Categories: []string{"AI & Technology"}}))
	require.NoError(t, s.store.UpdateLabels(ctx, "c3", core.Labels{Tags: []string{"go"}, Categories: []string{"AI & Technology"}}))

	rec := s.do(t, http.MethodGet, "/tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]LabelResponse](t, rec), 3)

	rec = s.do(t, http.MethodGet, "/tags/DevOps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	convs := decodeData[[]ConversationResponse](t, rec)
	require.Len(t, convs, 1)
	assert.Equal(t, "c2", convs[0].ID)

	rec = s.do(t, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []LabelResponse{{Label: "AI & Technology", Count: 2}}, decodeData[[]LabelResponse](t, rec))

	rec = s.do(t, http.MethodGet, "/categories/"+"AI%20&%20Technology", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]ConversationResponse](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/tags/unused", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]ConversationResponse](t, rec))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound},
		{search.ErrNotIndexed, http.StatusConflict},
		{storage.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{search.ErrEmptyQuery, http.StatusBadRequest},
		{&ingestion.MalformedInputError{Index: 1, Reason: "bad"}, http.StatusBadRequest},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorStatus(tt.err), "%v", tt.err)
	}
}
