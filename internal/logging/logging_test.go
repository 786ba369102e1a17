package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, l)

	l, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, json := range []bool{false, true} {
		log, err := New(Config{Level: "warn", JSON: json})
		require.NoError(t, err)
		assert.False(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Desugar().Core().Enabled(zapcore.ErrorLevel))
	}

	_, err := New(Config{Level: "nope"})
	assert.Error(t, err)
}

func TestComponentAcceptsNil(t *testing.T) {
	assert.NotNil(t, Component(nil, "pipeline"))
}
