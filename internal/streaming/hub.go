// Package streaming fans export lifecycle events out to in-process listeners.
package streaming

import (
	"context"
	"time"
)

// StreamEvent is a lifecycle event of one export.
type StreamEvent struct {
	ExportID       string    `json:"export_id"`
	AccountID      string    `json:"account_id,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
	EventType      string    `json:"event_type"`
	Payload        any       `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventFilter selects events. Empty fields match everything.
type EventFilter struct {
	ExportID   string   `json:"export_id,omitempty"`
	AccountID  string   `json:"account_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for export events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
