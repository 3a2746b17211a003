package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  slog.LevelInfo,
		Format: FormatJSON,
		Output: &buf,
	})

	l.Info("sync cycle finished", slog.Int("synced", 12))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "sync cycle finished", entry["msg"])
	assert.Equal(t, float64(12), entry["synced"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  slog.LevelInfo,
		Format: FormatText,
		Output: &buf,
	})

	l.Warn("embedding generation failed")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "embedding generation failed")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  slog.LevelWarn,
		Format: FormatJSON,
		Output: &buf,
	})

	l.Info("suppressed")
	assert.Empty(t, buf.String())

	l.Warn("emitted")
	assert.Contains(t, buf.String(), "emitted")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, slog.LevelInfo, cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
}
