package export

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/pkg/schema"
)

// EventAppender is satisfied by the Store and EventLog.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// ValidSummaryTransitions lists the allowed export summary transitions.
// Terminal states have no exits.
var ValidSummaryTransitions = map[schema.ExportStatus][]schema.ExportStatus{
	schema.ExportStatusInProgress: {schema.ExportStatusCompleted, schema.ExportStatusFailed},
}

// ValidResultTransitions lists the allowed render result transitions.
var ValidResultTransitions = map[schema.ResultStatus][]schema.ResultStatus{
	schema.ResultStatusInProgress: {
		schema.ResultStatusCompleted, schema.ResultStatusFailed,
		schema.ResultStatusRetryReceived, schema.ResultStatusRetryDelaySubmitted,
	},
	schema.ResultStatusRetryReceived: {
		schema.ResultStatusCompleted, schema.ResultStatusFailed,
		schema.ResultStatusRetryReceived, schema.ResultStatusRetryDelaySubmitted,
	},
	schema.ResultStatusRetryDelaySubmitted: {
		schema.ResultStatusCompleted, schema.ResultStatusFailed,
		schema.ResultStatusRetryReceived, schema.ResultStatusRetryDelaySubmitted,
	},
}

// SummaryFSM validates summary transitions and records them in the event log.
type SummaryFSM struct {
	appender EventAppender
}

// NewSummaryFSM creates a SummaryFSM emitting through appender.
func NewSummaryFSM(appender EventAppender) *SummaryFSM {
	return &SummaryFSM{appender: appender}
}

// Check reports INVALID_TRANSITION when from -> to is not allowed.
func (f *SummaryFSM) Check(exportID string, from, to schema.ExportStatus) error {
	if !slices.Contains(ValidSummaryTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid export transition: %s -> %s", from, to).
			WithDetails(map[string]any{"export_id": exportID, "from": string(from), "to": string(to)})
	}
	return nil
}

// Transition validates from -> to, runs persist and appends the matching
// event. Nothing is emitted when persist fails.
func (f *SummaryFSM) Transition(ctx context.Context, exportID string, from, to schema.ExportStatus, persist func() error, payload any) error {
	if err := f.Check(exportID, from, to); err != nil {
		return err
	}
	if err := persist(); err != nil {
		return err
	}
	eventType := schema.EventExportCompleted
	if to == schema.ExportStatusFailed {
		eventType = schema.EventExportFailed
	}
	return emit(ctx, f.appender, &store.Event{ExportID: exportID, Type: eventType}, payload)
}

// ResultFSM validates render result transitions and records them.
type ResultFSM struct {
	appender EventAppender
}

// NewResultFSM creates a ResultFSM emitting through appender.
func NewResultFSM(appender EventAppender) *ResultFSM {
	return &ResultFSM{appender: appender}
}

// Transition validates r.Status -> to, runs persist and appends the event.
func (f *ResultFSM) Transition(ctx context.Context, r *schema.ExportResultNotification, to schema.ResultStatus, persist func() error, payload any) error {
	if !slices.Contains(ValidResultTransitions[r.Status], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid render transition: %s -> %s", r.Status, to).
			WithElement(r.ElementID).
			WithDetails(map[string]any{
				"export_id":       r.ExportID,
				"notification_id": r.NotificationID,
				"from":            string(r.Status),
				"to":              string(to),
			})
	}
	if err := persist(); err != nil {
		return err
	}
	return emit(ctx, f.appender, &store.Event{
		ExportID:       r.ExportID,
		NotificationID: r.NotificationID,
		Type:           resultEventType(to),
	}, payload)
}

func resultEventType(to schema.ResultStatus) string {
	switch to {
	case schema.ResultStatusCompleted:
		return schema.EventRenderCompleted
	case schema.ResultStatusFailed:
		return schema.EventRenderFailed
	case schema.ResultStatusRetryReceived:
		return schema.EventRenderRetryReceived
	case schema.ResultStatusRetryDelaySubmitted:
		return schema.EventRenderRetryScheduled
	default:
		return schema.EventRenderSubmitted
	}
}

func emit(ctx context.Context, appender EventAppender, event *store.Event, payload any) error {
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "encode event payload").WithCause(err)
		}
		event.Payload = b
	}
	if err := appender.AppendEvent(ctx, event); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit %s event: %s", event.Type, err.Error()).WithCause(err)
	}
	return nil
}
