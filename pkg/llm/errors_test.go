package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected ErrorType
	}{
		{"rate limit", 429, ErrorTypeRateLimit},
		{"unauthorized", 401, ErrorTypeAuth},
		{"forbidden", 403, ErrorTypeAuth},
		{"bad request", 400, ErrorTypeBadPrompt},
		{"server error", 500, ErrorTypeTransient},
		{"bad gateway", 502, ErrorTypeTransient},
		{"ok", 200, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyStatusCode(tt.code))
		})
	}
}

func TestWrapErrorClassifiesByText(t *testing.T) {
	tests := []struct {
		text     string
		expected ErrorType
	}{
		{"429 Too Many Requests: rate limit exceeded", ErrorTypeRateLimit},
		{"401 Unauthorized: invalid api key", ErrorTypeAuth},
		{"connection reset by peer", ErrorTypeTransient},
		{"unexpected EOF", ErrorTypeTransient},
		{"something else entirely", ErrorTypeUnknown},
	}

	for _, tt := range tests {
		wrapped := WrapError(fmt.Errorf("request failed: %w", errors.New(tt.text)))
		assert.Equal(t, tt.expected, wrapped.Type, "text: %s", tt.text)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewError(ErrorTypeRateLimit, "slow down").IsRetryable())
	assert.True(t, NewError(ErrorTypeTransient, "flaky").IsRetryable())
	assert.True(t, NewError(ErrorTypeEmptyResponse, "nothing").IsRetryable())
	assert.False(t, NewError(ErrorTypeAuth, "bad key").IsRetryable())
	assert.False(t, NewError(ErrorTypeBadPrompt, "too long").IsRetryable())
}

func TestTypeOf(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "limited")
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(err))

	// Wrapping preserves the classified type.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))

	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(nil))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := WrapError(inner)
	require.ErrorIs(t, err, inner)
}
