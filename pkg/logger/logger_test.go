package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	require.NotNil(t, Log, "usable before Init")

	require.NoError(t, Init(zapcore.WarnLevel, zap.String("service", "test")))
	first := Log
	assert.True(t, Log.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, Log.Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, Init(zapcore.DebugLevel))
	assert.Same(t, first, Log, "Init only builds once")
}

func TestConfigure(t *testing.T) {
	cfg := configure(zapcore.DebugLevel)
	assert.True(t, cfg.Development)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)

	assert.True(t, configure(zapcore.InfoLevel).DisableStacktrace)
}
