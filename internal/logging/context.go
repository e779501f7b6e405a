package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	exportIDKey ctxKey = iota
	notificationIDKey
	elementIDKey
)

// WithExportID returns a context carrying the export ID.
func WithExportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, exportIDKey, id)
}

// WithNotificationID returns a context carrying the render notification ID.
func WithNotificationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, notificationIDKey, id)
}

// WithElementID returns a context carrying the courseware element ID.
func WithElementID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, elementIDKey, id)
}

// ExportID extracts the export ID from the context, or "" if absent.
func ExportID(ctx context.Context) string {
	v, _ := ctx.Value(exportIDKey).(string)
	return v
}

// NotificationID extracts the notification ID from the context, or "" if absent.
func NotificationID(ctx context.Context) string {
	v, _ := ctx.Value(notificationIDKey).(string)
	return v
}

// ElementID extracts the element ID from the context, or "" if absent.
func ElementID(ctx context.Context) string {
	v, _ := ctx.Value(elementIDKey).(string)
	return v
}

// WithIDs sets all correlation IDs on the context at once. Empty values are skipped.
func WithIDs(ctx context.Context, exportID, notificationID, elementID string) context.Context {
	if exportID != "" {
		ctx = WithExportID(ctx, exportID)
	}
	if notificationID != "" {
		ctx = WithNotificationID(ctx, notificationID)
	}
	if elementID != "" {
		ctx = WithElementID(ctx, elementID)
	}
	return ctx
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := ExportID(ctx); v != "" {
		attrs = append(attrs, slog.String("export_id", v))
	}
	if v := NotificationID(ctx); v != "" {
		attrs = append(attrs, slog.String("notification_id", v))
	}
	if v := ElementID(ctx); v != "" {
		attrs = append(attrs, slog.String("element_id", v))
	}
	return attrs
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and injects correlation IDs
// from the context into every record, so callers can use
// logger.InfoContext(ctx, ...) without threading IDs by hand.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
