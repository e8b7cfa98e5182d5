package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewHandlerFormat(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		isTTY    bool
		wantJSON bool
	}{
		{"json", FormatJSON, true, true},
		{"text", FormatText, false, false},
		{"auto on terminal", FormatAuto, true, false},
		{"auto piped", FormatAuto, false, true},
		{"empty piped", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			slog.New(newHandler(&buf, tt.format, tt.isTTY, slog.LevelInfo)).Info("hello", "k", "v")

			var entry map[string]any
			isJSON := json.Unmarshal(buf.Bytes(), &entry) == nil
			assert.Equal(t, tt.wantJSON, isJSON, buf.String())
			assert.Contains(t, buf.String(), "hello")
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, FormatJSON, false, ParseLevel("WARN")))

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	l, err := New(Options{Level: "DEBUG", Format: FormatAuto, File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l.With("component", "capture").Debug("session started", "session_id", "abc")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry), "file output is JSON")
	assert.Equal(t, "session started", entry["msg"])
	assert.Equal(t, "capture", entry["component"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestCloseWithoutFile(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
