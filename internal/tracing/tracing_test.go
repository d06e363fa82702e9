package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDs(t *testing.T) {
	assert.NotEmpty(t, NewTraceID())
	assert.NotEqual(t, NewTraceID(), NewTraceID())
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRunID(ctx))
	assert.Equal(t, -1, GetRunIndex(ctx))
	assert.Empty(t, GetBatchID(ctx))

	ctx = WithTraceID(ctx, "t1")
	ctx = WithRunID(ctx, "r1")
	ctx = WithRunIndex(ctx, 2)
	ctx = WithBatchID(ctx, "b1")

	assert.Equal(t, "t1", GetTraceID(ctx))
	assert.Equal(t, "r1", GetRunID(ctx))
	assert.Equal(t, 2, GetRunIndex(ctx))
	assert.Equal(t, "b1", GetBatchID(ctx))
}

func TestPropagateToRun(t *testing.T) {
	t.Run("should keep the trace and mint a run id", func(t *testing.T) {
		parent := WithTraceID(context.Background(), "trace-1")

		a := PropagateToRun(parent, 0)
		b := PropagateToRun(parent, 1)

		assert.Equal(t, "trace-1", GetTraceID(a))
		assert.Equal(t, "trace-1", GetTraceID(b))
		assert.NotEqual(t, GetRunID(a), GetRunID(b))
		assert.Equal(t, 1, GetRunIndex(b))
	})

	t.Run("should mint a trace when missing", func(t *testing.T) {
		ctx := PropagateToRun(context.Background(), 0)
		assert.NotEmpty(t, GetTraceID(ctx))
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := PropagateToRun(WithTraceID(context.Background(), "trace-9"), 3)
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"trace_id":"trace-9"`)
	assert.Contains(t, out, `"run_index":3`)
	assert.Contains(t, out, `"run_id":`)
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span")
	defer EndSpan(span, nil)

	assert.NotEmpty(t, GetTraceID(ctx))
}
