package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_InjectsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.InfoContext(WithExportID(context.Background(), "exp-tint"), "export started")
	logger.DebugContext(context.Background(), "hidden")

	output := buf.String()
	assert.Contains(t, output, "export started")
	assert.Contains(t, output, "export_id=exp-tint")
	assert.NotContains(t, output, "hidden")
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger(&buf, slog.LevelDebug).DebugContext(WithNotificationID(context.Background(), "n-9"), "dbg")
	assert.Contains(t, buf.String(), `"notification_id":"n-9"`)
}
