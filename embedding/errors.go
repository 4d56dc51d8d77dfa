package embedding

import (
	"errors"
	"fmt"

	"github.com/poiesic/chatvault/core"
)

var (
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionMismatch is returned when a provider answers with vectors of differing length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrResultMismatch is returned when a provider answers with the wrong number of vectors.
	ErrResultMismatch = errors.New("embedding result count mismatch")
)

// EmbeddingFailure reports the chunks whose batches could not be embedded.
// Vectors of the other batches are still returned alongside it.
type EmbeddingFailure struct {
	Model          string
	FailedChunkIDs []core.ID
	Attempts       int // Most attempts spent on any failed batch
	Err            error
}

func (e *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embedding with %s failed for %d chunks after %d attempts: %v",
		e.Model, len(e.FailedChunkIDs), e.Attempts, e.Err)
}

func (e *EmbeddingFailure) Unwrap() error {
	return e.Err
}
