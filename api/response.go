package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorStatus maps errors from the store, retriever and pipeline to HTTP status codes.
func ErrorStatus(err error) int {
	var (
		syntaxErr    *json.SyntaxError
		malformedErr *ingestion.MalformedInputError
		maxBytesErr  *http.MaxBytesError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrNotIndexed):
		return http.StatusConflict
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, storage.ErrInvalidQuery),
		errors.Is(err, ingestion.ErrUnknownPolicy),
		errors.Is(err, ingestion.ErrUnsupportedExport),
		errors.As(err, &syntaxErr),
		errors.As(err, &malformedErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	Error(w, ErrorStatus(err), err.Error())
}
