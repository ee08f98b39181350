package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType tags records with a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a WARN or ERROR.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries the protocol error classification.
	FieldErrorKind = "error_kind"
	// FieldConnID identifies one accepted daemon connection.
	FieldConnID = "conn_id"
	// FieldDirection is the session direction (encrypt or decrypt).
	FieldDirection = "direction"
	// FieldPeerPID and FieldPeerUID carry unix socket peer credentials.
	FieldPeerPID = "peer_pid"
	FieldPeerUID = "peer_uid"
	// FieldRunID identifies one daemon process run.
	FieldRunID = "run_id"
)

type connIDKey struct{}

// WithConnID stores a connection identifier on ctx.
func WithConnID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnIDFromContext returns the connection identifier stored by WithConnID.
func ConnIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(connIDKey{}).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := ConnIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldConnID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
