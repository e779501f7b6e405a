package schema

import "time"

// ElementType enumerates the courseware element kinds that can be exported.
type ElementType string

const (
	ElementTypeActivity    ElementType = "ACTIVITY"
	ElementTypePathway     ElementType = "PATHWAY"
	ElementTypeInteractive ElementType = "INTERACTIVE"
	ElementTypeComponent   ElementType = "COMPONENT"
)

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTypeActivity, ElementTypePathway, ElementTypeInteractive, ElementTypeComponent:
		return true
	}
	return false
}

// ExportType distinguishes the flavour of artifact being produced.
type ExportType string

const (
	ExportTypePreview ExportType = "PREVIEW"
	ExportTypeFull    ExportType = "FULL"
)

// ElementRef identifies a courseware element by id and type.
type ElementRef struct {
	ElementID   string      `json:"elementId"`
	ElementType ElementType `json:"elementType"`
}

// ExportRequest is a client-initiated request to export a courseware subtree.
type ExportRequest struct {
	ID          string       `json:"id"`
	ElementID   string       `json:"element_id"`
	ElementType ElementType  `json:"element_type"`
	AccountID   string       `json:"account_id"`
	ProjectID   string       `json:"project_id,omitempty"`
	WorkspaceID string       `json:"workspace_id,omitempty"`
	Status      ExportStatus `json:"status"`
	ExportType  ExportType   `json:"export_type"`
	Metadata    string       `json:"metadata,omitempty"`
}

// ExportRequestNotification asks the renderer to produce the snippet of one element.
type ExportRequestNotification struct {
	NotificationID string      `json:"notification_id"`
	ExportID       string      `json:"export_id"`
	ElementID      string      `json:"element_id"`
	ElementType    ElementType `json:"element_type"`
	RootElementID  string      `json:"root_element_id"`
	AccountID      string      `json:"account_id"`
	ProjectID      string      `json:"project_id,omitempty"`
}

// ExportResultNotification is the persisted outcome record of one render request.
type ExportResultNotification struct {
	NotificationID string       `json:"notification_id"`
	ExportID       string       `json:"export_id"`
	ElementID      string       `json:"element_id"`
	ElementType    ElementType  `json:"element_type"`
	RootElementID  string       `json:"root_element_id"`
	AccountID      string       `json:"account_id"`
	ProjectID      string       `json:"project_id,omitempty"`
	Status         ResultStatus `json:"status"`
	CompletionID   string       `json:"completion_id,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ExportErrorNotification records a render failure for one element.
type ExportErrorNotification struct {
	NotificationID string      `json:"notification_id"`
	ExportID       string      `json:"export_id"`
	ElementID      string      `json:"element_id,omitempty"`
	ElementType    ElementType `json:"element_type,omitempty"`
	ErrorMessage   string      `json:"error_message"`
	Cause          string      `json:"cause,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ExportRetryNotification signals that the renderer will retry an element later.
// It is informational; it never resolves a render request.
type ExportRetryNotification struct {
	NotificationID string `json:"notification_id"`
	ExportID       string `json:"export_id"`
	ElementID      string `json:"element_id,omitempty"`
	DelaySec       int    `json:"delay_sec"`
	Message        string `json:"message,omitempty"`
}

// ExportSummary is the externally visible state of an export.
// Once CompletedAt is set the status is terminal and never changes again.
type ExportSummary struct {
	ID          string       `json:"id"`
	ElementID   string       `json:"element_id"`
	ElementType ElementType  `json:"element_type"`
	AccountID   string       `json:"account_id"`
	ProjectID   string       `json:"project_id,omitempty"`
	WorkspaceID string       `json:"workspace_id,omitempty"`
	Status      ExportStatus `json:"status"`
	ExportType  ExportType   `json:"export_type"`
	Metadata    string       `json:"metadata,omitempty"`
	AmbrosiaURL string       `json:"ambrosia_url,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// ExportAmbrosiaSnippet is the raw rendered snippet of one element.
// Snippet is empty when the renderer writes content straight to blob storage.
type ExportAmbrosiaSnippet struct {
	ExportID       string      `json:"export_id"`
	NotificationID string      `json:"notification_id,omitempty"`
	ElementID      string      `json:"element_id"`
	ElementType    ElementType `json:"element_type"`
	AccountID      string      `json:"account_id,omitempty"`
	Snippet        string      `json:"snippet,omitempty"`
}

// AmbrosiaReducerErrorLog records a structural failure of the snippet reducer.
type AmbrosiaReducerErrorLog struct {
	ExportID     string    `json:"export_id"`
	Cause        string    `json:"cause"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
