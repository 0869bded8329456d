package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrProviderExhausted, "all providers failed").
		WithCause(root).
		WithHTTPStatus(503).
		WithRetryable(true).
		WithProvider("ollama")

	assert.Equal(t, ErrProviderExhausted, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "PROVIDER_EXHAUSTED")
	assert.Contains(t, err.Error(), "root")
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := PersistenceFailure("append turn", errors.New("disk full"))
	wrapped := fmt.Errorf("handle inbound: %w", inner)

	assert.Equal(t, ErrPersistenceFailure, GetErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrPersistenceFailure))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
