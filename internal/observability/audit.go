package observability

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one line of the audit trail
type AuditEvent struct {
	Type      string                 `json:"event_type"` // vote, ingest
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger appends audit events as JSON lines. Until InitAuditLogger is
// called events are dropped.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditMu   sync.RWMutex
	auditInst = &AuditLogger{logger: zerolog.New(io.Discard)}
)

// GetAuditLogger returns the process audit logger
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// InitAuditLogger directs audit events to the file at path, replacing any
// previous destination.
func InitAuditLogger(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	auditMu.Unlock()

	return prev.Close()
}

// CloseAuditLogger closes the audit file and goes back to dropping events
func CloseAuditLogger() error {
	auditMu.Lock()
	prev := auditInst
	auditInst = &AuditLogger{logger: zerolog.New(io.Discard)}
	auditMu.Unlock()
	return prev.Close()
}

// Record writes the event and mirrors it onto the active span
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}
	entry.Msg("")
}

// Close closes the audit file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// RecordVoteAudit records a finished consensus vote
func RecordVoteAudit(ctx context.Context, answered bool, answer string, votes, runs, failed int) {
	status := "no_answer"
	if answered {
		status = "answered"
	}
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   "vote",
		Action: "consensus",
		Status: status,
		Metadata: map[string]interface{}{
			"answer": answer,
			"votes":  votes,
			"runs":   runs,
			"failed": failed,
		},
	})
}

// RecordIngestAudit records an ingest batch
func RecordIngestAudit(ctx context.Context, batch string, stored, skipped int, err error) {
	status := "success"
	metadata := map[string]interface{}{
		"batch":   batch,
		"stored":  stored,
		"skipped": skipped,
	}
	if err != nil {
		status = "failure"
		metadata["error"] = err.Error()
	}
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "ingest",
		Action:   "ingest_batch",
		Status:   status,
		Metadata: metadata,
	})
}
