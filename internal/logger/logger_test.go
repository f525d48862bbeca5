package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", "json", &buf)

	log.Debug("schema ensured", "table", "mt_doc_user", "result", "built")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "schema ensured", entry["msg"])
	assert.Equal(t, "mt_doc_user", entry["table"])
	assert.Equal(t, "DEBUG", entry["level"])
}

func TestNew_TextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", "text", &buf)

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown", "table", "mt_doc_user")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "mt_doc_user")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
