package schema

// Event type constants for the export event log.
const (
	EventExportStarted   = "export_started"
	EventExportCompleted = "export_completed"
	EventExportFailed    = "export_failed"

	EventRenderSubmitted      = "render_submitted"
	EventRenderCompleted      = "render_completed"
	EventRenderFailed         = "render_failed"
	EventRenderRetryReceived  = "render_retry_received"
	EventRenderRetryScheduled = "render_retry_scheduled"
	EventRenderDeadLettered   = "render_dead_lettered"

	EventReducerFailed = "reducer_failed"
)

// ExportStatus represents the lifecycle state of an export summary.
type ExportStatus string

const (
	ExportStatusInProgress ExportStatus = "IN_PROGRESS"
	ExportStatusCompleted  ExportStatus = "COMPLETED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s ExportStatus) Terminal() bool {
	return s == ExportStatusCompleted || s == ExportStatusFailed
}

// ResultStatus represents the lifecycle state of one render request.
type ResultStatus string

const (
	ResultStatusInProgress          ResultStatus = "IN_PROGRESS"
	ResultStatusCompleted           ResultStatus = "COMPLETED"
	ResultStatusFailed              ResultStatus = "FAILED"
	ResultStatusRetryReceived       ResultStatus = "RETRY_RECEIVED"
	ResultStatusRetryDelaySubmitted ResultStatus = "RETRY_DELAY_SUBMITTED"
)

// Terminal reports whether the render request has resolved.
func (s ResultStatus) Terminal() bool {
	return s == ResultStatusCompleted || s == ResultStatusFailed
}
