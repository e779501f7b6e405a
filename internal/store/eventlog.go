package store

import (
	"context"
	"fmt"

	"github.com/rendis/ambrosia/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide event-sourcing operations.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-export sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	return el.store.AppendEvent(ctx, event)
}

// GetEvents returns events for an export with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, exportID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, exportID, since)
}

// Replay is the export history reconstructed from its event log.
type Replay struct {
	ExportStatus  schema.ExportStatus            `json:"export_status"`
	Notifications map[string]schema.ResultStatus `json:"notifications"`
	DeadLettered  int                            `json:"dead_lettered"`
	ReducerFailed bool                           `json:"reducer_failed"`
}

// ReplayEvents replays all events of an export.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, exportID string) (*Replay, error) {
	events, err := el.store.GetEvents(ctx, exportID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	replay := &Replay{Notifications: make(map[string]schema.ResultStatus)}
	for i, e := range events {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in export %s: expected %d, got %d", exportID, expected, e.Sequence)
		}

		switch e.Type {
		case schema.EventExportStarted:
			replay.ExportStatus = schema.ExportStatusInProgress
		case schema.EventExportCompleted:
			replay.ExportStatus = schema.ExportStatusCompleted
		case schema.EventExportFailed:
			replay.ExportStatus = schema.ExportStatusFailed
		case schema.EventReducerFailed:
			replay.ReducerFailed = true
		case schema.EventRenderSubmitted:
			replay.Notifications[e.NotificationID] = schema.ResultStatusInProgress
		case schema.EventRenderCompleted:
			replay.Notifications[e.NotificationID] = schema.ResultStatusCompleted
		case schema.EventRenderFailed:
			replay.Notifications[e.NotificationID] = schema.ResultStatusFailed
		case schema.EventRenderRetryReceived:
			replay.Notifications[e.NotificationID] = schema.ResultStatusRetryReceived
		case schema.EventRenderRetryScheduled:
			replay.Notifications[e.NotificationID] = schema.ResultStatusRetryDelaySubmitted
		case schema.EventRenderDeadLettered:
			replay.DeadLettered++
		}
	}
	return replay, nil
}

// Outstanding counts notifications that have not resolved yet.
func (r *Replay) Outstanding() int {
	n := 0
	for _, s := range r.Notifications {
		if !s.Terminal() {
			n++
		}
	}
	return n
}
