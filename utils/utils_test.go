package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 12)

	for _, c := range code {
		assert.Contains(t, "0123456789ABCDEF", string(c))
	}
}

func TestGenerateCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(6)
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCircuitBreaker_PropagatesErrors(t *testing.T) {
	cb := NewCircuitBreaker("test")
	upstreamErr := errors.New("upstream down")

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return nil, upstreamErr
	})
	assert.ErrorIs(t, err, upstreamErr)
}

func TestCircuitBreaker_TripsOpenAfterSustainedFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	upstreamErr := errors.New("upstream down")

	for i := 0; i < 100; i++ {
		_, _ = cb.Execute(context.Background(), func() (any, error) {
			return nil, upstreamErr
		})
	}

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
