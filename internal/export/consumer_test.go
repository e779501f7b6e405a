package export

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/internal/transport"
	"github.com/rendis/ambrosia/pkg/schema"
)

// renderFunc answers one render request by publishing replies on tr.
type renderFunc func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error

func replySnippet(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
	return transport.PublishJSON(ctx, tr, transport.TopicResult, &schema.ExportAmbrosiaSnippet{
		ExportID:       req.ExportID,
		NotificationID: req.NotificationID,
		ElementID:      req.ElementID,
		ElementType:    req.ElementType,
		AccountID:      req.AccountID,
		Snippet:        sampleSnippets[req.ElementID],
	})
}

type consumerHarness struct {
	*harness
	tr *transport.MemoryTransport
}

func newConsumerHarness(t *testing.T, render renderFunc) *consumerHarness {
	t.Helper()
	h := newHarness(t, "")
	tr := transport.NewMemoryTransport(4, transport.RedeliveryPolicy{
		MaxAttempts: 2, Delay: time.Millisecond, Backoff: transport.BackoffConstant,
	}, nil)
	t.Cleanup(func() { _ = tr.Close() })
	h.svc.transport = tr

	c := NewConsumer(h.svc)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)

	_, err := tr.Subscribe(transport.TopicRequest, func(ctx context.Context, msg transport.Message) error {
		var req schema.ExportRequestNotification
		if err := transport.Decode(msg, &req); err != nil {
			return err
		}
		return render(ctx, tr, &req)
	})
	require.NoError(t, err)
	return &consumerHarness{harness: h, tr: tr}
}

func (h *consumerHarness) run(t *testing.T) *schema.ExportSummary {
	t.Helper()
	s := h.start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.tr.Flush(ctx))

	final, err := h.store.GetSummary(context.Background(), s.ID)
	require.NoError(t, err)
	return final
}

func TestConsumer_CompletesExport(t *testing.T) {
	h := newConsumerHarness(t, replySnippet)
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusCompleted, final.Status)
	assert.NotEmpty(t, final.AmbrosiaURL)
	assert.Equal(t, 1, h.reducer.Calls())
	assert.Len(t, h.notifier.Notifications(), 1)
}

func TestConsumer_RendererErrorFailsExport(t *testing.T) {
	h := newConsumerHarness(t, func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
		if req.ElementID == "P" {
			return transport.PublishJSON(ctx, tr, transport.TopicError, &schema.ExportErrorNotification{
				NotificationID: req.NotificationID,
				ExportID:       req.ExportID,
				ErrorMessage:   "template missing",
			})
		}
		return replySnippet(ctx, tr, req)
	})
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusFailed, final.Status)
	assert.Zero(t, h.reducer.Calls())
	errs, err := h.svc.GetExportErrors(context.Background(), final.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "P", errs[0].ElementID)
}

func TestConsumer_UndeliverableRequestIsDeadLettered(t *testing.T) {
	h := newConsumerHarness(t, func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
		if req.ElementID == "C" {
			return schema.NewError(schema.ErrCodeRender, "renderer offline")
		}
		return replySnippet(ctx, tr, req)
	})
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusFailed, final.Status)
	replay, err := h.svc.EventLog().ReplayEvents(context.Background(), final.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, replay.DeadLettered)
	assert.Zero(t, replay.Outstanding())
}

func TestConsumer_RetryThenResult(t *testing.T) {
	var once sync.Once
	h := newConsumerHarness(t, func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
		if req.ElementID == "I" {
			var err error
			once.Do(func() {
				err = transport.PublishJSON(ctx, tr, transport.TopicRetry, &schema.ExportRetryNotification{
					NotificationID: req.NotificationID,
					ExportID:       req.ExportID,
					DelaySec:       1,
				})
			})
			if err != nil {
				return err
			}
		}
		return replySnippet(ctx, tr, req)
	})
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusCompleted, final.Status)
	assert.Equal(t, 1, h.reducer.Calls())
}

func TestConsumer_DuplicateResultsAreIdempotent(t *testing.T) {
	h := newConsumerHarness(t, func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
		if err := replySnippet(ctx, tr, req); err != nil {
			return err
		}
		return replySnippet(ctx, tr, req)
	})
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusCompleted, final.Status)
	assert.Equal(t, 1, h.reducer.Calls())
	assert.Len(t, h.notifier.Notifications(), 1)
}

func TestConsumer_EmptySnippetFailsRequest(t *testing.T) {
	h := newConsumerHarness(t, func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
		if req.ElementID == "C" {
			return transport.PublishJSON(ctx, tr, transport.TopicResult, &schema.ExportAmbrosiaSnippet{
				ExportID:       req.ExportID,
				NotificationID: req.NotificationID,
				ElementID:      req.ElementID,
				ElementType:    req.ElementType,
			})
		}
		return replySnippet(ctx, tr, req)
	})
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusFailed, final.Status)
	errs, err := h.svc.GetExportErrors(context.Background(), final.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, schema.ErrCodeInvalidArgument, errs[0].Cause)
}

func TestConsumer_ReplyWithoutExportIDStillFinishes(t *testing.T) {
	h := newConsumerHarness(t, func(ctx context.Context, tr transport.Transport, req *schema.ExportRequestNotification) error {
		return transport.PublishJSON(ctx, tr, transport.TopicResult, &schema.ExportAmbrosiaSnippet{
			NotificationID: req.NotificationID,
			ElementID:      req.ElementID,
			ElementType:    req.ElementType,
			AccountID:      req.AccountID,
			Snippet:        sampleSnippets[req.ElementID],
		})
	})
	final := h.run(t)

	assert.Equal(t, schema.ExportStatusFailed, final.Status)
	errs, err := h.svc.GetExportErrors(context.Background(), final.ID)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, final.ID, e.ExportID)
		assert.Equal(t, schema.ErrCodeInvalidArgument, e.Cause)
	}
}

func TestConsumer_StartFailsOnTakenTopic(t *testing.T) {
	h := newHarness(t, "")
	tr := transport.NewMemoryTransport(1, transport.DefaultRedeliveryPolicy(), nil)
	t.Cleanup(func() { _ = tr.Close() })
	h.svc.transport = tr

	_, err := tr.Subscribe(transport.TopicRetry, func(context.Context, transport.Message) error { return nil })
	require.NoError(t, err)

	c := NewConsumer(h.svc)
	err = c.Start()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	// Earlier subscriptions were released.
	_, err = tr.Subscribe(transport.TopicResult, func(context.Context, transport.Message) error { return nil })
	assert.NoError(t, err)
}
