package storage

import (
	"testing"

	"github.com/poiesic/chatvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestSortScored(t *testing.T) {
	results := []core.ScoredChunk{
		{Chunk: &core.Chunk{ID: 5}, Score: 0.5},
		{Chunk: &core.Chunk{ID: 9}, Score: 0.9},
		{Chunk: &core.Chunk{ID: 3}, Score: 0.5},
		{Chunk: &core.Chunk{ID: 1}, Score: 0.1},
	}
	SortScored(results)

	ids := make([]core.ID, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	assert.Equal(t, []core.ID{9, 3, 5, 1}, ids)
}

func TestValidateVectors(t *testing.T) {
	chunks := []*core.Chunk{{Vector: []float32{1, 2}}, {Vector: []float32{3, 4}}}

	dim, err := ValidateVectors(chunks, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = ValidateVectors(chunks, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	chunks = append(chunks, &core.Chunk{})
	_, err = ValidateVectors(chunks, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCountLabels(t *testing.T) {
	counts := CountLabels(
		[]string{"go", "badger"},
		[]string{"Go", "vectors"},
		[]string{"go", "badger"},
	)
	assert.Equal(t, []core.LabelCount{
		{Label: "go", Count: 3},
		{Label: "badger", Count: 2},
		{Label: "vectors", Count: 1},
	}, counts)
}
