package storage

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/chatvault/core"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or zero magnitude score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// SortScored orders results by score descending, breaking ties by ascending chunk ID.
func SortScored(results []core.ScoredChunk) {
	slices.SortFunc(results, func(a, b core.ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
}

// ValidateVectors checks that every chunk carries a vector of one length and
// that the length matches known, when known is non-zero. It returns the length.
func ValidateVectors(chunks []*core.Chunk, known int) (int, error) {
	dim := known
	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return 0, ErrDimensionMismatch
		}
		if dim == 0 {
			dim = len(chunk.Vector)
		}
		if len(chunk.Vector) != dim {
			return 0, ErrDimensionMismatch
		}
	}
	return dim, nil
}

// CountLabels tallies labels ignoring case. The first spelling seen is kept.
// Results are ordered by count descending, then label.
func CountLabels(sets ...[]string) []core.LabelCount {
	index := make(map[string]int)
	var counts []core.LabelCount
	for _, set := range sets {
		for _, label := range set {
			key := core.NormalizeTag(label)
			if key == "" {
				continue
			}
			if i, ok := index[key]; ok {
				counts[i].Count++
				continue
			}
			index[key] = len(counts)
			counts = append(counts, core.LabelCount{Label: label, Count: 1})
		}
	}
	slices.SortFunc(counts, func(a, b core.LabelCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return counts
}
