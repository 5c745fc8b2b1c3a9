package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := Wrap(ErrNotFound, "looking up conf entry")

	assert.Contains(t, wrapped.Error(), "looking up conf entry")
	assert.True(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(wrapped, ErrConflict))
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("boom")))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrapf(ErrNotFound, "location %d", 42)))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("location %d", 7)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "location 7")
	assert.True(t, Is(err, ErrNotFound))
}
