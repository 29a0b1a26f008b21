package audit

import (
	"context"
	"log/slog"
	"strings"

	"rollcall.app/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Logger writes security events as structured log records. It implements
// auth.AuditSink.
type Logger struct {
	logger *slog.Logger
}

// New returns an audit logger writing through logger.
func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Record writes an audit entry enriched with request and identity context.
// Empty event names are dropped.
func (l *Logger) Record(ctx context.Context, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		attrs = append(attrs,
			slog.String("user_id", identity.SubjectID),
			slog.String("organization_id", identity.OrganizationID),
		)
	}
	copyFields := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		copyFields = append(copyFields, k, v)
	}
	attrs = append(attrs, slog.Group("fields", copyFields...))
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
