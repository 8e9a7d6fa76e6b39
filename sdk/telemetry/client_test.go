package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestLogsCarryContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	client, err := New(context.Background(), "qmt-bridge", "test",
		WithLogWriter(&buf),
		WithLogLevel("DEBUG"),
	)
	require.NoError(t, err)

	ctx := AppendCommonAttrs(context.Background(), attribute.String("session", "s-1"))
	ctx = AppendEventAttrs(ctx, attribute.Int64("req_id", 7))

	client.Error(ctx, "Request failed", errors.New("boom"), attribute.String("action", "query_assets"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Request failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "s-1", entry["session"])
	assert.Equal(t, float64(7), entry["req_id"])
	assert.Equal(t, "query_assets", entry["action"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "qmt-bridge", entry["service"])
}

func TestLogLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	client, err := New(context.Background(), "qmt-bridge", "test",
		WithLogWriter(&buf),
		WithLogLevel("warn"),
	)
	require.NoError(t, err)

	client.Info(context.Background(), "hidden")
	client.Debug(context.Background(), "hidden")
	client.Warn(context.Background(), "shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestDisabledClientIsSafe(t *testing.T) {
	client, err := New(context.Background(), "qmt-bridge", "test",
		WithLogsDisabled(),
		WithMetricsDisabled(),
		WithTracesDisabled(),
	)
	require.NoError(t, err)

	ctx, span := client.StartSpan(context.Background(), "noop")
	defer span.End()

	client.Info(ctx, "ignored")
	client.RecordCounter(ctx, "qmt.test.counter", 1)
	client.RecordLatency(ctx, "qmt.test", 15*time.Millisecond)
	client.RecordError(ctx, errors.New("ignored"))
	assert.Equal(t, "", GetTraceID(ctx))
	assert.NotNil(t, client.Meter())
	assert.NoError(t, client.Shutdown(context.Background()))
}

func TestContextAttrsDoNotAlias(t *testing.T) {
	base := AppendCommonAttrs(context.Background(), attribute.String("a", "1"))
	left := AppendCommonAttrs(base, attribute.String("b", "2"))
	right := AppendCommonAttrs(base, attribute.String("c", "3"))

	assert.Len(t, GetCommonAttrs(base), 1)
	assert.Equal(t, "b", string(GetCommonAttrs(left)[1].Key))
	assert.Equal(t, "c", string(GetCommonAttrs(right)[1].Key))
}
