package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/martinmaurice/llmgate/pkg/env"
)

func TestNewLogger(t *testing.T) {
	t.Run("json in production", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(&buf, &env.Specification{Env: "production", LogLevel: "info"}).Info("hello", "account_id", "acc")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, "acc", line["account_id"])
	})

	t.Run("text elsewhere", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(&buf, &env.Specification{Env: "development"}).Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, &env.Specification{Env: "development", LogLevel: "WARN"})
		logger.Info("dropped")
		logger.Warn("kept")
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, parseLevel(in))
		})
	}
}
