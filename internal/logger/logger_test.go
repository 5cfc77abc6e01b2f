package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestSlogLoggerLevelsAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Module("transfer").With(String("session_id", "s1")).Info("upload started",
		Int64("bytes", 2048), Float64("ratio", 0.123456), Duration("elapsed", 1500*time.Millisecond))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "upload started", entry["msg"])
	assert.Equal(t, "transfer", entry["module"])
	assert.Equal(t, "s1", entry["session_id"])
	assert.InDelta(t, 2048, entry["bytes"], 0)
	assert.InDelta(t, 0.123, entry["ratio"], 0.0001)
	assert.Equal(t, "1.5s", entry["elapsed"])
}

func TestModuleNesting(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, nil)

	log.Module("lifecycle").Module("poll").Debug("tick")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "lifecycle.poll", entries[0]["module"])
}

func TestWithContextAddsTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, nil)

	log.WithContext(WithTraceID(t.Context(), "abc-123")).Info("traced")
	log.WithContext(t.Context()).Info("untraced")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc-123", entries[0]["trace_id"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestTextHandlerFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newTextHandler(buf, traceLevelValue, time.UTC)
	log := &SlogLogger{module: "poller", level: traceLevelValue}
	log.logger = slog.New(handler)

	log.Warn("progress query failed", String("status", "bad gateway"), Int("code", 502))
	log.Trace("tick")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `WARN  [poller] progress query failed status="bad gateway" code=502`, lines[0])
	assert.Equal(t, "TRACE [poller] tick", lines[1])
}

func TestCentralLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "parkwatch.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"poller": "warn"},
	})
	require.NoError(t, err)

	cl.Module("lifecycle").Info("phase changed", String("phase", "processing"))
	cl.Module("poller").Info("suppressed by module level")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	entries := decodeLines(t, bytes.NewBuffer(data))
	require.Len(t, entries, 1)
	assert.Equal(t, "lifecycle", entries[0]["module"])
	assert.Equal(t, "processing", entries[0]["phase"])
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestBufferedFileWriterCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	require.ErrorIs(t, err, os.ErrClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
