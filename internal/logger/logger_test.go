package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	tests := []struct {
		name     string
		fn       func()
		level    zapcore.Level
		expected string
	}{
		{
			name:     "Info",
			fn:       func() { l.Info("test message") },
			level:    zapcore.InfoLevel,
			expected: "test message",
		},
		{
			name:     "Warn",
			fn:       func() { l.Warn("warning message") },
			level:    zapcore.WarnLevel,
			expected: "warning message",
		},
		{
			name:     "Error",
			fn:       func() { l.Error("error message") },
			level:    zapcore.ErrorLevel,
			expected: "error message",
		},
		{
			name:     "Debug",
			fn:       func() { l.Debug("debug message") },
			level:    zapcore.DebugLevel,
			expected: "debug message",
		},
		{
			name:     "Info with args",
			fn:       func() { l.Info("test %s=%d", "count", 42) },
			level:    zapcore.InfoLevel,
			expected: "test count=42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.TakeAll()
			tt.fn()
			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.expected, entries[0].Message)
		})
	}
}

func TestWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).Named("health").With("request_id", "abc")

	l.Info("probe done")
	l.Debug("filtered out")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "health", entries[0].LoggerName)
	assert.Equal(t, "abc", entries[0].ContextMap()["request_id"])
}

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err := New(level)
		require.NoError(t, err, level)
		assert.NotNil(t, l)
	}

	_, err := New("chatty")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var l Logger = Nop()
	l.Error("discarded")
}
