package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	return ev
}

func TestLoggerEmitsOneJSONLinePerCall(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, "kernelnode")
	l.Info(context.Background(), "hello", map[string]any{"n": 1})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1)

	ev := decodeLine(t, &buf)
	assert.Equal(t, LevelInfo, ev.Level)
	assert.Equal(t, "kernelnode", ev.Service)
	assert.Equal(t, "hello", ev.Msg)
}

func TestLoggerBelowLevelIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, Options{Service: "x", Level: LevelWarn})
	l.Debug(context.Background(), "should not appear", nil)
	l.Info(context.Background(), "also should not appear", nil)
	assert.Empty(t, buf.String())
}

func TestLoggerFieldsAreSortedDeterministically(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, "svc")
	l.Info(context.Background(), "m", map[string]any{"zeta": 1, "alpha": 2, "mid": 3})

	ev := decodeLine(t, &buf)
	require.Len(t, ev.Fields, 3)
	assert.Equal(t, "alpha", ev.Fields[0].K)
	assert.Equal(t, "mid", ev.Fields[1].K)
	assert.Equal(t, "zeta", ev.Fields[2].K)
}

func TestLoggerTracingEnrichmentWinsOverCallerField(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, "svc")
	ctx := ContextWithSpanContext(context.Background(), SpanContext{TraceID: "t1", SpanID: "s1", Sampled: true})
	l.Info(ctx, "m", map[string]any{"trace_id": "caller-supplied"})

	ev := decodeLine(t, &buf)
	found := false
	for _, f := range ev.Fields {
		if f.K == "trace_id" {
			found = true
			assert.Equal(t, "t1", f.V)
		}
	}
	assert.True(t, found)
}

func TestLoggerComposesDeterministicJSONForMapField(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, "svc")
	l.Info(context.Background(), "m", map[string]any{"detail": map[string]any{"b": 2, "a": 1}})

	ev := decodeLine(t, &buf)
	require.Len(t, ev.Fields, 1)
	assert.Equal(t, `{"a":1,"b":2}`, ev.Fields[0].V)
}

func TestSanitizeStripsControlCharsAndTruncates(t *testing.T) {
	s := sanitize("hello\x00\x7fworld"+strings.Repeat("x", 10), 5)
	assert.LessOrEqual(t, len(s), 5)
	assert.Equal(t, "helloworld", sanitize("hello\x00\x7fworld", 64))
}

func TestNopLoggerNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop.Info(context.Background(), "noop", map[string]any{"k": "v"})
	})
}
