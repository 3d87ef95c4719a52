package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultIsNoOp(t *testing.T) {
	// Package init must leave a usable logger in place.
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Infow("before initialize", "key", "value")
		Debugf("formatted %d", 1)
	})
}

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	assert.False(t, JSONOutput)
	assert.NotNil(t, Logger)
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.True(t, JSONOutput)
}

func TestNamed(t *testing.T) {
	require.NoError(t, Initialize(false))
	child := Named("extension")
	require.NotNil(t, child)
	assert.IsType(t, &zap.SugaredLogger{}, child)
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("MOSAIC_LOG_LEVEL", "debug")
	assert.Equal(t, zap.DebugLevel, levelFromEnv())

	t.Setenv("MOSAIC_LOG_LEVEL", "warn")
	assert.Equal(t, zap.WarnLevel, levelFromEnv())

	t.Setenv("MOSAIC_LOG_LEVEL", "")
	assert.Equal(t, zap.InfoLevel, levelFromEnv())
}
