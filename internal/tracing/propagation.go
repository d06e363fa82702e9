package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToRun derives the context of one consensus run. The trace ID is
// kept so all runs of a vote correlate; each run gets its own run ID.
func PropagateToRun(ctx context.Context, index int) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}

	ctx = WithTraceID(ctx, traceID)
	ctx = WithRunID(ctx, NewRunID())
	return WithRunIndex(ctx, index)
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}

	if traceID := GetTraceID(ctx); traceID != "" {
		logger = logger.With().Str("trace_id", traceID).Logger()
	}
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With().Str("run_id", runID).Logger()
	}
	if idx := GetRunIndex(ctx); idx >= 0 {
		logger = logger.With().Int("run_index", idx).Logger()
	}
	if batchID := GetBatchID(ctx); batchID != "" {
		logger = logger.With().Str("batch_id", batchID).Logger()
	}

	return logger
}
