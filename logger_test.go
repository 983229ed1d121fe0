package botfs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestLogger_VolumeOperations(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	v, _ := newTestVolume(t, 134, WithLogger(logger))
	_, err := v.Create("/a", 2, 0)
	require.NoError(t, err)
	_, err = v.Create("/a", 2, 0)
	require.Error(t, err)

	var created, failed map[string]any
	for _, rec := range decodeRecords(t, &buf) {
		switch rec["msg"] {
		case "create completed":
			created = rec
		case "create failed":
			failed = rec
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "test", created["volume"])
	assert.Equal(t, "/a", created["file"])
	assert.Equal(t, float64(70), created["start"])
	assert.Equal(t, float64(72), created["end"])

	require.NotNil(t, failed)
	assert.Equal(t, "ERROR", failed["level"])
	assert.Contains(t, failed["error"], "already exists")
}

func TestLogger_AllocationWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	v, _ := newTestVolume(t, 134, WithLogger(logger))
	_, err := v.Create("/big", 100, 0)
	require.ErrorIs(t, err, ErrOutOfSpace)

	var levels []string
	for _, rec := range decodeRecords(t, &buf) {
		if rec["msg"] == "allocation failed" {
			levels = append(levels, rec["level"].(string))
			assert.Equal(t, float64(101), rec["blocks"])
		}
	}
	assert.Equal(t, []string{"WARN"}, levels)
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))

	// WithLogger(nil) falls back to the no-op logger.
	v, _ := newTestVolume(t, 134, WithLogger(nil))
	_, err := v.Create("/a", 1, 0)
	require.NoError(t, err)
}
