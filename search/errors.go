package search

import "errors"

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrGeneratorRequired is returned when an embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("empty query")

	// ErrNotIndexed is returned by Related when the conversation has no
	// chunks embedded with the active model.
	ErrNotIndexed = errors.New("conversation not indexed with the active model")
)
