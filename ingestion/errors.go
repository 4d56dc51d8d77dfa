package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrGeneratorRequired is returned when an embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrUnsupportedExport is returned when a document is neither an array of
	// conversations nor an object holding one under "conversations".
	ErrUnsupportedExport = errors.New("unsupported export document")

	// ErrUnknownPolicy is returned for a duplicate policy name that is not skip, overwrite or merge.
	ErrUnknownPolicy = errors.New("unknown duplicate policy")
)

// MalformedInputError reports a record that cannot be turned into a conversation.
// It is not retryable.
type MalformedInputError struct {
	Index  int    // Position of the record in the export
	Field  string // Field that was missing or invalid, empty for the record itself
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Reason)
}

func malformed(index int, field, format string, args ...any) *MalformedInputError {
	return &MalformedInputError{Index: index, Field: field, Reason: fmt.Sprintf(format, args...)}
}
