package graphid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LogAllocation(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.LogAllocation(context.Background(), Vertex, 2, nil)
	assert.Zero(t, buf.Len(), "successful allocations are not logged")

	l.LogAllocation(context.Background(), EdgeLabel, 0, errors.New("boom"))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "edge-label", lines[0]["kind"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLogger_LogRenewal(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.LogRenewal(context.Background(), 1, 2, time.Millisecond, nil)
	l.LogRenewal(context.Background(), 1, 2, time.Millisecond, errors.New("throttled"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.EqualValues(t, 1, lines[1]["partition"])
	assert.EqualValues(t, 2, lines[1]["namespace"])
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).WithKind(Relation).WithPartition(5).WithNamespace(1)
	l.Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "relation", lines[0]["kind"])
	assert.EqualValues(t, 5, lines[0]["partition"])
	assert.EqualValues(t, 1, lines[0]["namespace"])
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.LogClose(context.Background(), 3, errors.New("ignored"))
}
