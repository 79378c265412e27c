package config

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracelogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New())
	require.NoError(t, err)

	assert.Empty(t, c.Workload)
	assert.False(t, c.TraceAllCallees)
	assert.Equal(t, DefaultLabelMap, c.LabelMap)
	assert.Equal(t, tracelogger.DefaultTraceName, c.TraceName)
	assert.Equal(t, slog.LevelInfo, c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)

	w, err := c.LoadWorkload()
	require.NoError(t, err)
	assert.Nil(t, w)

	codec, err := c.Codec()
	require.NoError(t, err)
	assert.Equal(t, trace.Gzip, codec)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("WORKLOAD", "foo, bar,,baz")
	t.Setenv("TRACE_ALL_CALLEES", "true")
	t.Setenv("TRACE_NAME", "out.zst")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "JSON")

	c, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, []string{"foo", "bar", "baz"}, c.Workload)
	assert.True(t, c.TraceAllCallees)
	assert.Equal(t, slog.LevelWarn, c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)

	w, err := c.LoadWorkload()
	require.NoError(t, err)
	assert.True(t, w.TopLevelMode())

	codec, err := c.Codec()
	require.NoError(t, err)
	assert.Equal(t, trace.Zstd, codec)
}

func TestConfigFile(t *testing.T) {
	v := New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
workload: [top, helper]
labelmap: build/labelmap
compression: snappy
verbose: true
log:
  file: lltrace.log
`)))

	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"top", "helper"}, c.Workload)
	assert.Equal(t, "build/labelmap", c.LabelMap)
	assert.Equal(t, slog.LevelDebug, c.Log.Level)
	assert.Equal(t, "lltrace.log", c.Log.File)

	w, err := c.LoadWorkload()
	require.NoError(t, err)
	assert.False(t, w.TopLevelMode())

	codec, err := c.Codec()
	require.NoError(t, err)
	assert.Equal(t, trace.Snappy, codec)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"log level", Key_LogLevel, "loud"},
		{"log format", Key_LogFormat, "xml"},
		{"compression", Key_Compression, "lzma"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v := New()
			v.Set(test.key, test.value)

			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
