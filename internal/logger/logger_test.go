package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create a console logger", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.NotNil(t, l)
		assert.NoError(t, l.Close())
	})

	t.Run("should write to the log file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "finagent.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		zl := l.Zerolog()
		zl.Info().Msg("ingest finished")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "ingest finished")
	})

	t.Run("should redact card numbers and keys", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "finagent.log")

		l, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)
		zl := l.Zerolog()
		zl.Info().
			Str("card", "4111 1111 1111 1111").
			Str("key", "sk-abcdefghijklmnopqrstuvwxyz123456").
			Msg("payment")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "4111 1111 1111 1111")
		assert.NotContains(t, string(data), "sk-abcdefghijklmnopqrstuvwxyz123456")
		assert.Contains(t, string(data), "[REDACTED]")
	})

	t.Run("should fall back to info on a bad level", func(t *testing.T) {
		l, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
	})
}

func TestComponent(t *testing.T) {
	l, err := New(Config{Level: "warn"})
	require.NoError(t, err)

	child := l.Component("consensus")
	assert.Equal(t, zerolog.WarnLevel, child.GetLevel())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
