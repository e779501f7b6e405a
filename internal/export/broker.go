package export

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rendis/ambrosia/internal/logging"
	"github.com/rendis/ambrosia/internal/notify"
	"github.com/rendis/ambrosia/pkg/schema"
)

const renderFailedMessage = "one or more elements failed to render"

// Broker detects export completion. Broadcast is safe to call redundantly
// and concurrently; only a caller that observes an empty tracking set
// drives finalization, and the conditional terminal write arbitrates
// between callers that raced there together.
type Broker struct {
	svc      *Service
	notifier notify.Notifier

	mu       sync.Mutex
	inflight map[string]struct{}
}

func newBroker(svc *Service, n notify.Notifier) *Broker {
	return &Broker{svc: svc, notifier: n, inflight: make(map[string]struct{})}
}

// Broadcast finalizes exportID when no render request is outstanding and
// returns the current summary otherwise. Terminal summaries are returned
// as persisted.
func (b *Broker) Broadcast(ctx context.Context, exportID string) (*schema.ExportSummary, error) {
	if exportID == "" {
		return nil, schema.InvalidArgument("export id is required")
	}
	ctx = logging.WithExportID(ctx, exportID)
	summary, err := b.svc.store.GetSummary(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if summary.Status.Terminal() {
		return summary, nil
	}
	done, err := b.svc.tracking.IsCompleted(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if !done {
		return summary, nil
	}
	if !b.acquire(exportID) {
		return summary, nil
	}
	defer b.release(exportID)

	// Another process may have finalized while we waited on tracking.
	if summary, err = b.svc.store.GetSummary(ctx, exportID); err != nil {
		return nil, err
	}
	if summary.Status.Terminal() {
		return summary, nil
	}

	final, won, err := b.svc.generate(ctx, summary)
	if err != nil {
		return b.fail(ctx, summary, err)
	}
	if won {
		msg := ""
		if final.Status == schema.ExportStatusFailed {
			msg = renderFailedMessage
		}
		b.notify(ctx, final, msg)
	}
	return final, nil
}

// fail marks summary FAILED after an unexpected finalization error and
// tells subscribers. Notification errors are logged and dropped.
func (b *Broker) fail(ctx context.Context, summary *schema.ExportSummary, cause error) (*schema.ExportSummary, error) {
	logging.LogWith(ctx, b.svc.logger).Error("export finalization failed", slog.String("error", cause.Error()))
	failed, won, err := b.svc.finalize(ctx, summary, schema.ExportStatusFailed, b.svc.timestamp(), "")
	if err != nil {
		return nil, err
	}
	if won {
		b.notify(ctx, failed, cause.Error())
	}
	return failed, nil
}

func (b *Broker) notify(ctx context.Context, s *schema.ExportSummary, errMsg string) {
	if err := b.notifier.ExportFinished(ctx, notify.FromSummary(s, errMsg)); err != nil {
		logging.LogWith(ctx, b.svc.logger).Warn("export notification failed", slog.String("error", err.Error()))
	}
}

func (b *Broker) acquire(exportID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.inflight[exportID]; busy {
		return false
	}
	b.inflight[exportID] = struct{}{}
	return true
}

func (b *Broker) release(exportID string) {
	b.mu.Lock()
	delete(b.inflight, exportID)
	b.mu.Unlock()
}
