package chatvault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chatvault/ai/mock"
	"github.com/poiesic/chatvault/classify"
	"github.com/poiesic/chatvault/config"
	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/reembed"
	"github.com/poiesic/chatvault/storage/badger"
)

const exportDoc = `[
 {"id": "c1", "title": "Sourdough", "create_time": 1700000000, "messages": [
   {"role": "user", "content": "How long should sourdough proof?"},
   {"role": "assistant", "content": "Usually four to twelve hours depending on temperature."}]},
 {"id": "c2", "title": "Kubernetes", "create_time": 1700100000, "messages": [
   {"role": "user", "content": "How do I restart a deployment?"},
   {"role": "assistant", "content": "Use kubectl rollout restart deployment/name."}]}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "vault")
	cfg.Import.Classifier = "heuristic"
	cfg.Import.Workers = 2
	return cfg
}

func testProvider() *mock.MockEmbedder {
	return &mock.MockEmbedder{ModelName: "test-model", Dimension: 8}
}

func openTestVault(t *testing.T, cfg *config.Config) *Vault {
	t.Helper()
	v, err := Open(context.Background(), cfg,
		WithProvider(mock.NewMockProviderWithServices(testProvider(), mock.NewMockClassifier())))
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conversations.json")
	require.NoError(t, os.WriteFile(path, []byte(exportDoc), 0644))
	return path
}

func TestOpen(t *testing.T) {
	t.Run("opens badger store from config", func(t *testing.T) {
		v := openTestVault(t, testConfig(t))

		assert.NotNil(t, v.Store())
		assert.NotNil(t, v.Pipeline())
		assert.NotNil(t, v.Retriever())
		assert.Equal(t, "test-model", v.Pipeline().Model())
		assert.NotNil(t, v.Config())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		cfg := testConfig(t)
		cfg.Storage.Path = tmpFile
		v, err := Open(context.Background(), cfg,
			WithProvider(mock.NewMockProviderWithServices(testProvider(), mock.NewMockClassifier())))
		assert.Error(t, err)
		assert.Nil(t, v)
	})

	t.Run("unknown classifier closes supplied store", func(t *testing.T) {
		store, err := badger.NewMemoryStore()
		require.NoError(t, err)

		cfg := testConfig(t)
		cfg.Import.Classifier = "oracle"
		v, err := Open(context.Background(), cfg,
			WithStore(store),
			WithProvider(mock.NewMockProviderWithServices(testProvider(), mock.NewMockClassifier())))
		require.Error(t, err)
		assert.Nil(t, v)

		var kindErr *classify.UnknownKindError
		assert.ErrorAs(t, err, &kindErr)
		assert.True(t, store.IsClosed())
	})
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StorageConfig{Backend: "sqlite"})
	assert.Error(t, err)
}

func TestVault_Close(t *testing.T) {
	v, err := Open(context.Background(), testConfig(t),
		WithProvider(mock.NewMockProviderWithServices(testProvider(), mock.NewMockClassifier())))
	require.NoError(t, err)
	assert.NoError(t, v.Close())
}

func TestVault_Import(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, testConfig(t))
	path := writeExport(t)

	report, err := v.Import(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Imported)

	report, err = v.Import(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)

	report, err = v.Import(ctx, path, "overwrite")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Overwritten)

	_, err = v.Import(ctx, path, "replace")
	assert.ErrorIs(t, err, ingestion.ErrUnknownPolicy)

	_, err = v.Import(ctx, filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)

	hits, err := v.Retriever().Search(ctx, "restart a deployment")
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	count, err := v.Store().CountConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestVault_Factories(t *testing.T) {
	v := openTestVault(t, testConfig(t))

	t.Run("reembedder", func(t *testing.T) {
		r, err := v.NewReembedder(reembed.DefaultConfig(), nil)
		require.NoError(t, err)
		require.NoError(t, r.Run(context.Background()))
	})

	t.Run("retagger", func(t *testing.T) {
		r, err := v.NewRetagger(reembed.DefaultConfig(), nil)
		require.NoError(t, err)
		assert.NotNil(t, r)
	})

	t.Run("handler", func(t *testing.T) {
		h, err := v.Handler()
		require.NoError(t, err)
		assert.NotNil(t, h)
	})

	t.Run("mcp server", func(t *testing.T) {
		s, err := v.MCPServer()
		require.NoError(t, err)
		assert.NotNil(t, s.MCPServer())
	})
}
