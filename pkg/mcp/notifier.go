package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ambrosia/internal/notify"
	"github.com/rendis/ambrosia/internal/streaming"
	"github.com/rendis/ambrosia/pkg/schema"
)

// notificationMethod is the MCP method used for export pushes.
const notificationMethod = "notifications/message"

// clientSender is the part of *server.MCPServer the notifier needs.
type clientSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// MCPNotifier pushes export completion to the requesting account's session.
type MCPNotifier struct {
	sender   clientSender
	sessions *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{sender: mcpServer, sessions: sessions}
}

// ExportFinished sends n to the account's session.
// Best-effort: returns nil if the account is not connected.
func (n *MCPNotifier) ExportFinished(_ context.Context, en *notify.ExportNotification) error {
	sessionID, ok := n.sessions.SessionFor(en.AccountID)
	if !ok {
		return nil
	}
	err := n.sender.SendNotificationToSpecificClient(sessionID, notificationMethod, notificationParams(en))
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

func notificationParams(en *notify.ExportNotification) map[string]any {
	level := "info"
	if en.Status != schema.ExportStatusCompleted {
		level = "error"
	}
	data := map[string]any{
		"event":        en.EventType(),
		"export_id":    en.ExportID,
		"element_id":   en.ElementID,
		"element_type": string(en.ElementType),
		"status":       string(en.Status),
	}
	if en.AmbrosiaURL != "" {
		data["ambrosia_url"] = en.AmbrosiaURL
	}
	if en.ErrorMsg != "" {
		data["error_message"] = en.ErrorMsg
	}
	return map[string]any{"level": level, "logger": "ambrosia", "data": data}
}

// Forward relays finished-export events from hub to the notifier until ctx
// is cancelled.
func (n *MCPNotifier) Forward(ctx context.Context, hub streaming.EventHub, logger *slog.Logger) error {
	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventExportCompleted, schema.EventExportFailed},
	})
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				en, isExport := ev.Payload.(*notify.ExportNotification)
				if !isExport {
					continue
				}
				if err := n.ExportFinished(ctx, en); err != nil {
					logger.Warn("mcp export notification failed",
						slog.String("export_id", en.ExportID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
	return nil
}

var _ notify.Notifier = (*MCPNotifier)(nil)
