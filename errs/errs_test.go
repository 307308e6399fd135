package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRetrieval, KindOf(New(KindRetrieval, "index down")))
	assert.Equal(t, KindInternal, KindOf(errors.New("untagged")))

	// Classification survives fmt wrapping.
	wrapped := fmt.Errorf("search: %w", New(KindRateLimit, "throttled"))
	assert.Equal(t, KindRateLimit, KindOf(wrapped))

	// Outermost tag wins in a double-tagged chain.
	double := Wrap(KindRetrieval, "embed failed", New(KindNetwork, "timeout"))
	assert.Equal(t, KindRetrieval, KindOf(double))
}

func TestWrapNil(t *testing.T) {
	err := Wrap(KindNetwork, "whatever", nil)
	assert.NoError(t, err)
	// The interface itself must be nil, not a typed nil pointer.
	assert.True(t, err == nil)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindNetwork, "embed call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsKind(t *testing.T) {
	err := New(KindValidation, "empty message")
	assert.True(t, IsKind(err, KindValidation))
	assert.False(t, IsKind(err, KindAuth))
	assert.False(t, IsKind(nil, KindValidation))
}

func TestUserMessageHidesInternalDetail(t *testing.T) {
	secret := "pgpool: password authentication failed for user admin"
	for _, kind := range []Kind{KindInternal, KindValidation, KindAuth, KindRateLimit, KindNetwork, KindRetrieval} {
		msg := UserMessage(Wrap(kind, "boom", errors.New(secret)))
		require.NotEmpty(t, msg, "kind %s", kind)
		assert.NotContains(t, msg, "admin", "kind %s", kind)
		assert.NotContains(t, msg, "boom", "kind %s", kind)
	}
}
