package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/internal/notify"
	"github.com/rendis/ambrosia/internal/streaming"
	"github.com/rendis/ambrosia/pkg/schema"
)

type sentNotification struct {
	sessionID string
	method    string
	params    map[string]any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeSender) SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{sessionID: sessionID, method: method, params: params})
	return nil
}

func (f *fakeSender) Sent() []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotification(nil), f.sent...)
}

func completed() *notify.ExportNotification {
	return &notify.ExportNotification{
		ExportID:    "exp-1",
		AccountID:   "acct-1",
		ElementID:   "A",
		ElementType: schema.ElementTypeActivity,
		Status:      schema.ExportStatusCompleted,
		AmbrosiaURL: "ambrosia/exp-1/ambrosia.json",
	}
}

func TestMCPNotifier_SendsToRegisteredSession(t *testing.T) {
	sender := &fakeSender{}
	reg := NewSessionRegistry()
	reg.Register("acct-1", "sess-1")
	n := &MCPNotifier{sender: sender, sessions: reg}

	require.NoError(t, n.ExportFinished(context.Background(), completed()))

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "sess-1", sent[0].sessionID)
	assert.Equal(t, notificationMethod, sent[0].method)
	assert.Equal(t, "info", sent[0].params["level"])
	data, ok := sent[0].params["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, schema.EventExportCompleted, data["event"])
	assert.Equal(t, "ambrosia/exp-1/ambrosia.json", data["ambrosia_url"])
	assert.NotContains(t, data, "error_message")
}

func TestMCPNotifier_FailedExportIsErrorLevel(t *testing.T) {
	en := completed()
	en.Status = schema.ExportStatusFailed
	en.AmbrosiaURL = ""
	en.ErrorMsg = "one or more elements failed to render"

	params := notificationParams(en)
	assert.Equal(t, "error", params["level"])
	data := params["data"].(map[string]any)
	assert.Equal(t, schema.EventExportFailed, data["event"])
	assert.Equal(t, en.ErrorMsg, data["error_message"])
	assert.NotContains(t, data, "ambrosia_url")
}

func TestMCPNotifier_UnknownAccountIsNoop(t *testing.T) {
	sender := &fakeSender{}
	n := &MCPNotifier{sender: sender, sessions: NewSessionRegistry()}

	require.NoError(t, n.ExportFinished(context.Background(), completed()))
	assert.Empty(t, sender.Sent())
}

func TestMCPNotifier_ExpiredSessionIsRemoved(t *testing.T) {
	sender := &fakeSender{err: server.ErrSessionNotFound}
	reg := NewSessionRegistry()
	reg.Register("acct-1", "sess-1")
	n := &MCPNotifier{sender: sender, sessions: reg}

	require.NoError(t, n.ExportFinished(context.Background(), completed()))
	_, ok := reg.SessionFor("acct-1")
	assert.False(t, ok)
}

func TestMCPNotifier_SendErrorIsReturned(t *testing.T) {
	sender := &fakeSender{err: errors.New("pipe closed")}
	reg := NewSessionRegistry()
	reg.Register("acct-1", "sess-1")
	n := &MCPNotifier{sender: sender, sessions: reg}

	assert.Error(t, n.ExportFinished(context.Background(), completed()))
}

func TestMCPNotifier_ForwardRelaysHubEvents(t *testing.T) {
	sender := &fakeSender{}
	reg := NewSessionRegistry()
	reg.Register("acct-1", "sess-1")
	n := &MCPNotifier{sender: sender, sessions: reg}

	hub := streaming.NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Forward(ctx, hub, slog.New(slog.NewTextHandler(io.Discard, nil))))

	hn := notify.NewHubNotifier(hub)
	require.NoError(t, hub.Publish(ctx, streaming.StreamEvent{ExportID: "exp-1", EventType: schema.EventExportStarted}))
	require.NoError(t, hn.ExportFinished(ctx, completed()))

	assert.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "sess-1", sender.Sent()[0].sessionID)
}
