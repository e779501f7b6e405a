package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", ExportID(ctx))
	assert.Equal(t, "", NotificationID(ctx))
	assert.Equal(t, "", ElementID(ctx))

	ctx = WithExportID(ctx, "exp-123")
	ctx = WithNotificationID(ctx, "n-1")
	ctx = WithElementID(ctx, "act-42")

	assert.Equal(t, "exp-123", ExportID(ctx))
	assert.Equal(t, "n-1", NotificationID(ctx))
	assert.Equal(t, "act-42", ElementID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "exp-abc", "n-x", "act-7")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "export_id=exp-abc")
	assert.Contains(t, output, "notification_id=n-x")
	assert.Contains(t, output, "element_id=act-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithExportID(context.Background(), "exp-only")
	LogWith(ctx, logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "export_id=exp-only")
	assert.NotContains(t, output, "notification_id")
	assert.NotContains(t, output, "element_id")
}

func TestWithIDs_SkipsEmpty(t *testing.T) {
	ctx := WithIDs(WithElementID(context.Background(), "keep"), "exp-1", "", "")
	assert.Equal(t, "exp-1", ExportID(ctx))
	assert.Equal(t, "", NotificationID(ctx))
	assert.Equal(t, "keep", ElementID(ctx))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "exp-auto", "n-auto", "cmp-auto")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"export_id":"exp-auto"`)
	assert.Contains(t, output, `"notification_id":"n-auto"`)
	assert.Contains(t, output, `"element_id":"cmp-auto"`)
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "export_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "broker")}).WithGroup("export"))

	logger.InfoContext(WithExportID(context.Background(), "exp-grp"), "grouped", "key", "val")

	output := buf.String()
	assert.Contains(t, output, `"component":"broker"`)
	assert.Contains(t, output, "exp-grp")
}
