package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole(t *testing.T) {
	tests := []struct {
		format   string
		expected string
	}{
		{"text", "level=INFO msg=\"starting to log\" inst=3"},
		{"json", `"msg":"starting to log","inst":3`},
	}

	for _, test := range tests {
		t.Run(test.format, func(t *testing.T) {
			var output bytes.Buffer
			logger, err := New(Settings{Level: slog.LevelInfo, Format: test.format, Output: &output})
			require.NoError(t, err)
			defer logger.Close()

			logger.Debug("hidden")
			logger.Info("starting to log", slog.Int("inst", 3))

			assert.Contains(t, output.String(), test.expected)
			assert.NotContains(t, output.String(), "hidden")
		})
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(Settings{Format: "xml"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFile(t *testing.T) {
	var output bytes.Buffer
	path := filepath.Join(t.TempDir(), "lltrace.log")

	logger, err := New(Settings{Level: slog.LevelDebug, Output: &output, File: path})
	require.NoError(t, err)

	logger.Debug("tracking function", slog.String("function", "bar"))
	require.NoError(t, logger.Close())

	assert.Contains(t, output.String(), "function=bar")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record))
	assert.Equal(t, "tracking function", record["msg"])
	assert.Equal(t, "bar", record["function"])
	assert.Equal(t, "DEBUG", record["level"])
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
