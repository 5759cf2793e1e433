package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"development", "production", "PROD", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		assert.NotNil(t, l.SugaredLogger)
	}
}

func TestLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("course_id", "c1").Info("applied", "action", "enable")
	l.Warn("skipped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "applied", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "c1", fields["course_id"])
	assert.Equal(t, "enable", fields["action"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	l := NewNop()
	l.Error("ignored", "k", "v")
	l.Sync()
}
