package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testModel = "embeddinggemma"

// startPostgres runs a pgvector container and returns its connection string.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:0.8.1-pg18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "chatvault",
			"POSTGRES_PASSWORD": "chatvault",
			"POSTGRES_DB":       "chatvault",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to create postgres container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://chatvault:chatvault@%s:%s/chatvault?sslmode=disable", host, port.Port())
}

func testConversation(id string, created time.Time, texts ...string) *core.Conversation {
	conv := &core.Conversation{ID: id, Title: "Conversation " + id, CreatedAt: created}
	for i, text := range texts {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		conv.Turns = append(conv.Turns, core.Turn{Role: role, Text: text, Position: i})
	}
	return conv
}

func testChunks(conversationID string, texts ...string) []*core.Chunk {
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		vector := make([]float32, 3)
		vector[i%3] = 1
		chunks[i] = &core.Chunk{
			ID:             core.IDFromContent(conversationID, text),
			ConversationID: conversationID,
			Seq:            i,
			FirstTurn:      i,
			LastTurn:       i,
			Text:           text,
			Vector:         vector,
		}
	}
	return chunks
}

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	url := startPostgres(ctx, t)

	store, err := openStore(ctx, Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reset := func(t *testing.T) {
		_, err := store.pool.Exec(ctx, `TRUNCATE conversations, chunks, embeddings, staged_embeddings, models CASCADE`)
		require.NoError(t, err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("migrations are idempotent", func(t *testing.T) {
		again, err := Open(ctx, Config{URL: url})
		require.NoError(t, err)
		require.NoError(t, again.Close())
		require.NoError(t, again.Close())
	})

	t.Run("put and get conversation", func(t *testing.T) {
		reset(t)
		conv := testConversation("c1", base, "What is pgvector?", "A vector extension for Postgres.")
		conv.Tags = []string{"postgres"}
		require.NoError(t, store.PutConversation(ctx, conv))
		assert.False(t, conv.InsertedAt.IsZero())
		firstInsert := conv.InsertedAt

		got, err := store.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, conv.Title, got.Title)
		assert.Equal(t, conv.Turns, got.Turns)
		assert.Equal(t, []string{"postgres"}, got.Tags)
		assert.True(t, base.Equal(got.CreatedAt))

		conv.InsertedAt = time.Time{}
		conv.Title = "Renamed"
		require.NoError(t, store.PutConversation(ctx, conv))
		assert.True(t, firstInsert.Equal(conv.InsertedAt))

		_, err = store.GetConversation(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list, count and labels", func(t *testing.T) {
		reset(t)
		for i, id := range []string{"a", "b", "c"} {
			conv := testConversation(id, base.Add(time.Duration(i)*time.Hour), "hello there", "general kenobi")
			require.NoError(t, store.PutConversation(ctx, conv))
		}
		count, err := store.CountConversations(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		page, err := store.ListConversations(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "b", page[0].ID)

		all, err := store.ListConversations(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		require.NoError(t, store.UpdateLabels(ctx, "a", core.Labels{
			Tags:       []string{"Star Wars", "star wars", "Quotes"},
			Categories: []string{"Entertainment"},
			Summary:    "A greeting.",
		}))
		require.NoError(t, store.UpdateLabels(ctx, "b", core.Labels{Tags: []string{"quotes"}}))
		assert.ErrorIs(t, store.UpdateLabels(ctx, "zzz", core.Labels{}), storage.ErrNotFound)

		tagged, err := store.FindByTag(ctx, "QUOTES")
		require.NoError(t, err)
		require.Len(t, tagged, 2)
		assert.Equal(t, "b", tagged[0].ID)

		inCategory, err := store.FindByCategory(ctx, "entertainment")
		require.NoError(t, err)
		require.Len(t, inCategory, 1)
		assert.Equal(t, []string{"star wars", "quotes"}, inCategory[0].Tags)

		tags, err := store.Tags(ctx)
		require.NoError(t, err)
		assert.Equal(t, []core.LabelCount{{Label: "quotes", Count: 2}, {Label: "star wars", Count: 1}}, tags)
	})

	t.Run("search text", func(t *testing.T) {
		reset(t)
		require.NoError(t, store.PutConversation(ctx, testConversation("go", base, "How do goroutines work?", "They are scheduled by the runtime.")))
		require.NoError(t, store.PutConversation(ctx, testConversation("rust", base.Add(time.Hour), "How do lifetimes work?", "The borrow checker tracks them.")))

		hits, err := store.SearchText(ctx, "goroutines runtime", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "go", hits[0].ID)

		hits, err = store.SearchText(ctx, "100%", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = store.SearchText(ctx, "the and of", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("chunks and nearest", func(t *testing.T) {
		reset(t)
		conv := testConversation("c1", base, "alpha", "beta", "gamma")
		require.NoError(t, store.PutConversation(ctx, conv))
		chunks := testChunks("c1", "alpha", "beta", "gamma")
		require.NoError(t, store.PutChunks(ctx, "c1", testModel, chunks))

		dim, err := store.Dimension(ctx, testModel)
		require.NoError(t, err)
		assert.Equal(t, 3, dim)

		got, err := store.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{testModel}, got.EmbeddedWith)

		stored, err := store.GetChunks(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, stored, 3)
		assert.Equal(t, chunks[1].ID, stored[1].ID)
		assert.Nil(t, stored[1].Vector)

		vectors, err := store.ChunkVectors(ctx, testModel, "c1")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 0}, vectors[chunks[1].ID])

		nearest, err := store.NearestChunks(ctx, testModel, []float32{0, 1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, nearest, 2)
		assert.Equal(t, chunks[1].ID, nearest[0].Chunk.ID)
		assert.InDelta(t, 1.0, nearest[0].Score, 1e-6)
		assert.Equal(t, testModel, nearest[0].Chunk.Model)

		_, err = store.NearestChunks(ctx, testModel, []float32{1, 0}, 2)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

		empty, err := store.NearestChunks(ctx, "unknown-model", []float32{1, 0}, 2)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("dimension mismatch leaves no partial write", func(t *testing.T) {
		reset(t)
		require.NoError(t, store.PutConversation(ctx, testConversation("c1", base, "alpha", "beta")))
		require.NoError(t, store.PutChunks(ctx, "c1", testModel, testChunks("c1", "alpha")))

		bad := testChunks("c1", "alpha", "beta")
		bad[1].Vector = []float32{1, 0}
		err := store.PutChunks(ctx, "c1", testModel, bad)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

		stored, err := store.GetChunks(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, stored, 1)

		err = store.PutChunks(ctx, "nope", testModel, testChunks("nope", "x"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("new chunk set resets other models", func(t *testing.T) {
		reset(t)
		require.NoError(t, store.PutConversation(ctx, testConversation("c1", base, "alpha", "beta")))
		require.NoError(t, store.PutChunks(ctx, "c1", "model-a", testChunks("c1", "alpha", "beta")))
		require.NoError(t, store.PutChunks(ctx, "c1", "model-b", testChunks("c1", "alpha", "beta")))

		got, err := store.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"model-a", "model-b"}, got.EmbeddedWith)

		require.NoError(t, store.PutChunks(ctx, "c1", "model-b", testChunks("c1", "alpha", "delta")))
		got, err = store.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"model-b"}, got.EmbeddedWith)

		vectors, err := store.ChunkVectors(ctx, "model-a", "c1")
		require.NoError(t, err)
		assert.Len(t, vectors, 1, "only the surviving chunk keeps its model-a vector")

		pending, err := store.PendingConversations(ctx, "model-a", 0)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "c1", pending[0].ID)
	})

	t.Run("staged embeddings", func(t *testing.T) {
		reset(t)
		require.NoError(t, store.PutConversation(ctx, testConversation("c1", base, "alpha", "beta")))
		chunks := testChunks("c1", "alpha", "beta")

		require.NoError(t, store.StageEmbeddings(ctx, testModel, "c1", map[core.ID][]float32{
			chunks[0].ID: chunks[0].Vector,
		}))
		staged, err := store.StagedEmbeddings(ctx, testModel, []core.ID{chunks[0].ID, chunks[1].ID})
		require.NoError(t, err)
		assert.Equal(t, map[core.ID][]float32{chunks[0].ID: chunks[0].Vector}, staged)

		require.NoError(t, store.PutChunks(ctx, "c1", testModel, chunks))
		staged, err = store.StagedEmbeddings(ctx, testModel, []core.ID{chunks[0].ID})
		require.NoError(t, err)
		assert.Empty(t, staged)
	})

	t.Run("delete cascades", func(t *testing.T) {
		reset(t)
		require.NoError(t, store.PutConversation(ctx, testConversation("c1", base, "alpha")))
		require.NoError(t, store.PutChunks(ctx, "c1", testModel, testChunks("c1", "alpha")))
		require.NoError(t, store.DeleteConversation(ctx, "c1"))

		chunks, err := store.GetChunks(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, chunks)
		nearest, err := store.NearestChunks(ctx, testModel, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, nearest)

		assert.ErrorIs(t, store.DeleteConversation(ctx, "c1"), storage.ErrNotFound)
	})

	t.Run("closed store is unavailable", func(t *testing.T) {
		closed, err := openStore(ctx, Config{URL: url})
		require.NoError(t, err)
		require.NoError(t, closed.Close())
		_, err = closed.CountConversations(ctx)
		assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	})
}
