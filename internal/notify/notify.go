// Package notify tells external listeners that an export finished.
// Delivery is best effort; callers log and drop errors.
package notify

import (
	"context"
	"errors"

	"github.com/rendis/ambrosia/internal/streaming"
	"github.com/rendis/ambrosia/pkg/schema"
)

// ExportNotification describes a finished export.
type ExportNotification struct {
	ExportID    string              `json:"export_id"`
	AccountID   string              `json:"account_id"`
	ElementID   string              `json:"element_id"`
	ElementType schema.ElementType  `json:"element_type"`
	Status      schema.ExportStatus `json:"status"`
	AmbrosiaURL string              `json:"ambrosia_url,omitempty"`
	ErrorMsg    string              `json:"error_message,omitempty"`
}

// FromSummary builds the notification for a terminal summary.
func FromSummary(s *schema.ExportSummary, errMsg string) *ExportNotification {
	return &ExportNotification{
		ExportID:    s.ID,
		AccountID:   s.AccountID,
		ElementID:   s.ElementID,
		ElementType: s.ElementType,
		Status:      s.Status,
		AmbrosiaURL: s.AmbrosiaURL,
		ErrorMsg:    errMsg,
	}
}

// EventType maps the notification status to an event log type.
func (n *ExportNotification) EventType() string {
	if n.Status == schema.ExportStatusCompleted {
		return schema.EventExportCompleted
	}
	return schema.EventExportFailed
}

// Notifier delivers export completion notifications.
type Notifier interface {
	ExportFinished(ctx context.Context, n *ExportNotification) error
}

// HubNotifier publishes notifications on the streaming hub.
type HubNotifier struct {
	hub streaming.EventHub
}

// NewHubNotifier creates a notifier over hub.
func NewHubNotifier(hub streaming.EventHub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (h *HubNotifier) ExportFinished(ctx context.Context, n *ExportNotification) error {
	return h.hub.Publish(ctx, streaming.StreamEvent{
		ExportID:  n.ExportID,
		AccountID: n.AccountID,
		EventType: n.EventType(),
		Payload:   n,
	})
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) ExportFinished(ctx context.Context, n *ExportNotification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.ExportFinished(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) ExportFinished(context.Context, *ExportNotification) error { return nil }

var (
	_ Notifier = (*HubNotifier)(nil)
	_ Notifier = Multi(nil)
	_ Notifier = Nop{}
)
