package store

import (
	"context"
	"time"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Export summaries
	CreateSummary(ctx context.Context, summary *schema.ExportSummary) error
	GetSummary(ctx context.Context, id string) (*schema.ExportSummary, error)
	FinalizeSummary(ctx context.Context, id string, final SummaryFinalize) error
	ListSummaries(ctx context.Context, filter SummaryFilter) ([]*schema.ExportSummary, error)

	// Result notifications
	CreateResult(ctx context.Context, result *schema.ExportResultNotification) error
	GetResult(ctx context.Context, notificationID string) (*schema.ExportResultNotification, error)
	UpdateResult(ctx context.Context, notificationID string, update ResultUpdate) error
	ListResults(ctx context.Context, exportID string) ([]*schema.ExportResultNotification, error)

	// Error notifications
	CreateError(ctx context.Context, e *schema.ExportErrorNotification) error
	ListErrors(ctx context.Context, exportID string) ([]*schema.ExportErrorNotification, error)
	HasErrors(ctx context.Context, exportID string) (bool, error)

	// Reducer error logs
	CreateReducerError(ctx context.Context, e *schema.AmbrosiaReducerErrorLog) error
	ListReducerErrors(ctx context.Context, exportID string) ([]*schema.AmbrosiaReducerErrorLog, error)

	// Durable snippets
	PutSnippet(ctx context.Context, snippet *schema.ExportAmbrosiaSnippet) error
	ListSnippets(ctx context.Context, exportID string) ([]*schema.ExportAmbrosiaSnippet, error)
	DeleteSnippets(ctx context.Context, exportID string) error

	// Cached snippets (expire at expiresAt)
	PutCachedSnippet(ctx context.Context, snippet *schema.ExportAmbrosiaSnippet, expiresAt time.Time) error
	ListCachedSnippets(ctx context.Context, exportID string, now time.Time) ([]*schema.ExportAmbrosiaSnippet, error)
	DeleteCachedSnippets(ctx context.Context, exportID string) error
	PurgeCachedSnippets(ctx context.Context, now time.Time) (int64, error)

	// Tracking entries (expire at expiresAt)
	AddTracking(ctx context.Context, exportID, notificationID string, expiresAt time.Time) error
	RemoveTracking(ctx context.Context, exportID, notificationID string) error
	CountTracking(ctx context.Context, exportID string, now time.Time) (int, error)
	PurgeTracking(ctx context.Context, now time.Time) (int64, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, exportID string, since int64) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
