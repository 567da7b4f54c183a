package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetSugaredLoggerWithoutInit(t *testing.T) {
	baseLogger, log = nil, nil
	l := GetSugaredLogger()
	require.NotNil(t, l)
	assert.NotNil(t, baseLogger)
	assert.NotPanics(t, func() { Infow("started", "run", "r1") })
}

func TestInitDebug(t *testing.T) {
	require.NoError(t, Init(true))
	assert.True(t, baseLogger.Core().Enabled(zapcore.DebugLevel))
	assert.NotPanics(t, func() { Errorf("failed: %v", "boom") })
}
