package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProviderError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		err           error
		wantTransient bool
	}{
		{"rate limited", 429, errors.New("slow down"), true},
		{"server error", 503, errors.New("unavailable"), true},
		{"bad request", 400, errors.New("input too long"), false},
		{"unauthorized", 401, errors.New("bad key"), false},
		{"deadline", 0, context.DeadlineExceeded, true},
		{"canceled", 0, context.Canceled, false},
		{"rate limit wording", 0, errors.New("API returned: Rate limit reached"), true},
		{"opaque failure", 0, errors.New("model not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := NewProviderError("local", "embed", tt.status, tt.err)
			assert.Equal(t, tt.wantTransient, perr.Transient)
			assert.Equal(t, tt.wantTransient, IsTransient(fmt.Errorf("wrapped: %w", perr)))
			assert.ErrorIs(t, perr, tt.err)
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := NewProviderError("openai", "embed", 429, errors.New("quota"))
	assert.Equal(t, "openai embed: status 429: quota", err.Error())

	err = NewProviderError("local", "classify", 0, errors.New("boom"))
	assert.Equal(t, "local classify: boom", err.Error())

	assert.False(t, IsTransient(errors.New("plain")))
}
