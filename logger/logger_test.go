package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerNeverNil(t *testing.T) {
	// The package-level logger must be usable before Initialize.
	require.NotNil(t, Logger)
	Logger.Debugw("safe before initialize")
}

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.True(t, JSONOutput)
}

func TestPackageLevelWrappers(t *testing.T) {
	// Safe before Initialize (no-op logger) and after.
	Debugw("debug message", FieldConfKey, "invoice_from")
	Infow("info message", FieldLocation, int64(42))
	Warnw("warn message", FieldCount, 3)
	Errorw("error message", FieldError, "boom")

	require.NoError(t, Initialize(false))
	Infow("info after initialize", FieldJobID, "abc")
}
