package logger_test

import (
	"testing"

	"github.com/IANDYI/glucose-diary/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	log, err := logger.New("debug")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = logger.New("")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New("loud")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := logger.ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)
}

func TestMust(t *testing.T) {
	assert.Panics(t, func() { logger.Must(nil, assert.AnError) })
}

func TestNamed_NilBase(t *testing.T) {
	assert.NotNil(t, logger.Named(nil, "diary"))
}
