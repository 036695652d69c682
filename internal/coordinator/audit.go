package coordinator

import (
	"context"
	"log/slog"
	"time"
)

type traceIDKey struct{}

// WithTraceID returns a context carrying a request trace id for audit records
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFrom returns the trace id stored by WithTraceID, or ""
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// AuditEntry represents a logged turn for provenance tracking
type AuditEntry struct {
	Timestamp     time.Time
	SessionID     string
	Model         string
	MessageLength int
	ImageCount    int
	ItemCount     int
	Cancelled     bool
	Duration      time.Duration
	ErrorMsg      string
	TraceID       string
}

// AuditLogger handles audit logging for session turns
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
	}
}

// LogTurnStart logs a message accepted for a session
func (al *AuditLogger) LogTurnStart(ctx context.Context, entry *AuditEntry) {
	al.logger.InfoContext(ctx, "turn_start",
		"session_id", entry.SessionID,
		"model", entry.Model,
		"message_length", entry.MessageLength,
		"image_count", entry.ImageCount,
		"trace_id", entry.TraceID,
		"timestamp", entry.Timestamp,
	)
}

// LogTurnResult logs the outcome of a turn
func (al *AuditLogger) LogTurnResult(ctx context.Context, entry *AuditEntry) {
	if entry.ErrorMsg != "" {
		al.logger.ErrorContext(ctx, "turn_error",
			"session_id", entry.SessionID,
			"error", entry.ErrorMsg,
			"duration_ms", entry.Duration.Milliseconds(),
			"trace_id", entry.TraceID,
		)
		return
	}
	al.logger.InfoContext(ctx, "turn_result",
		"session_id", entry.SessionID,
		"items", entry.ItemCount,
		"cancelled", entry.Cancelled,
		"duration_ms", entry.Duration.Milliseconds(),
		"trace_id", entry.TraceID,
	)
}

// LogSessionEvent logs a session lifecycle change such as creation or expiry
func (al *AuditLogger) LogSessionEvent(ctx context.Context, event, sessionID string) {
	al.logger.InfoContext(ctx, event,
		"session_id", sessionID,
		"trace_id", TraceIDFrom(ctx),
	)
}
