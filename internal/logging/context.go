package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTraceID is the standardized structured logging key for request trace identifiers.
	FieldTraceID = "trace_id"
	// FieldSection is the standardized structured logging key for library section titles.
	FieldSection = "section"
	// FieldRatingKey is the standardized structured logging key for Plex rating keys.
	FieldRatingKey = "rating_key"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
)

type contextKey int

const (
	traceIDKey contextKey = iota
	sectionKey
)

// WithTraceID stores a request trace id on the context.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceIDFromContext returns the trace id stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(traceIDKey).(string)
	return id, ok && id != ""
}

// WithSection stores the library section being processed on the context.
func WithSection(ctx context.Context, title string) context.Context {
	if title == "" {
		return ctx
	}
	return context.WithValue(ctx, sectionKey, title)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := TraceIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTraceID, id))
	}
	if section, ok := ctx.Value(sectionKey).(string); ok && section != "" {
		fields = append(fields, slog.String(FieldSection, section))
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
	return logger.With(attrsToArgs(fields)...)
}
