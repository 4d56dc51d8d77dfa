package badger

import (
	"fmt"

	"github.com/poiesic/chatvault/core"
)

// Record keys. badgerhold namespaces keys by record type, so only the
// identifying fields appear here.

// makeEmbeddingKey generates the key of a chunk's vector for one model.
// Format: model:chunkID
func makeEmbeddingKey(model string, chunkID core.ID) string {
	return fmt.Sprintf("%s:%s", model, chunkID)
}

// makeStagedKey generates the key of a staged vector.
// Format: model:chunkID
func makeStagedKey(model string, chunkID core.ID) string {
	return makeEmbeddingKey(model, chunkID)
}
