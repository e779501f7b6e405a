package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Event is an immutable entry in an export's event log.
type Event struct {
	ID             int64           `json:"id"`
	ExportID       string          `json:"export_id"`
	NotificationID string          `json:"notification_id,omitempty"`
	Type           string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Sequence       int64           `json:"sequence"`
}

// SummaryFilter specifies criteria for listing export summaries.
// ProjectID and WorkspaceID select the duplicated listing indexes.
type SummaryFilter struct {
	ProjectID   string               `json:"project_id,omitempty"`
	WorkspaceID string               `json:"workspace_id,omitempty"`
	AccountID   string               `json:"account_id,omitempty"`
	Status      *schema.ExportStatus `json:"status,omitempty"`
	Limit       int                  `json:"limit,omitempty"`
	Offset      int                  `json:"offset,omitempty"`
}

// SummaryFinalize moves an in-progress summary to a terminal status.
type SummaryFinalize struct {
	Status      schema.ExportStatus `json:"status"`
	CompletedAt time.Time           `json:"completed_at"`
	AmbrosiaURL string              `json:"ambrosia_url,omitempty"`
}

// ResultUpdate specifies mutable fields of a result notification.
type ResultUpdate struct {
	Status       *schema.ResultStatus `json:"status,omitempty"`
	CompletionID string               `json:"completion_id,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}
