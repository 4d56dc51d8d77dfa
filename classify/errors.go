package classify

import (
	"errors"
	"fmt"
)

// ErrClassifierRequired is returned when the llm kind has no language model.
var ErrClassifierRequired = errors.New("llm classifier requires an ai.Classifier")

// UnknownKindError reports a classifier kind New does not know.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown classifier kind %q (want llm, heuristic or none)", e.Kind)
}
