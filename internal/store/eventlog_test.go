package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/pkg/schema"
)

func TestEventLog_AppendEvent_MonotonicSequence(t *testing.T) {
	el := NewEventLog(newTestStore(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &Event{ExportID: "exp-1", NotificationID: "n-1", Type: schema.EventRenderSubmitted}
		require.NoError(t, el.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence, "sequence should be monotonic")
	}

	other := &Event{ExportID: "exp-2", Type: schema.EventExportStarted}
	require.NoError(t, el.AppendEvent(ctx, other))
	assert.Equal(t, int64(1), other.Sequence, "sequences are per export")
}

func TestEventLog_ConcurrentAppends(t *testing.T) {
	el := NewEventLog(newTestStore(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, el.AppendEvent(ctx, &Event{ExportID: "exp-1", Type: schema.EventRenderCompleted}))
		}()
	}
	wg.Wait()

	events, err := el.GetEvents(ctx, "exp-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestEventLog_ReplayEvents(t *testing.T) {
	el := NewEventLog(newTestStore(t))
	ctx := context.Background()

	for _, e := range []*Event{
		{ExportID: "exp-1", Type: schema.EventExportStarted},
		{ExportID: "exp-1", NotificationID: "n-1", Type: schema.EventRenderSubmitted},
		{ExportID: "exp-1", NotificationID: "n-2", Type: schema.EventRenderSubmitted},
		{ExportID: "exp-1", NotificationID: "n-3", Type: schema.EventRenderSubmitted},
		{ExportID: "exp-1", NotificationID: "n-1", Type: schema.EventRenderCompleted},
		{ExportID: "exp-1", NotificationID: "n-2", Type: schema.EventRenderRetryReceived},
		{ExportID: "exp-1", NotificationID: "n-3", Type: schema.EventRenderDeadLettered},
		{ExportID: "exp-1", NotificationID: "n-3", Type: schema.EventRenderFailed},
	} {
		require.NoError(t, el.AppendEvent(ctx, e))
	}

	replay, err := el.ReplayEvents(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExportStatusInProgress, replay.ExportStatus)
	assert.Equal(t, schema.ResultStatusCompleted, replay.Notifications["n-1"])
	assert.Equal(t, schema.ResultStatusRetryReceived, replay.Notifications["n-2"])
	assert.Equal(t, schema.ResultStatusFailed, replay.Notifications["n-3"])
	assert.Equal(t, 1, replay.DeadLettered)
	assert.Equal(t, 1, replay.Outstanding())
}

func TestEventLog_ReplayEmpty(t *testing.T) {
	el := NewEventLog(newTestStore(t))
	replay, err := el.ReplayEvents(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, replay.Notifications)
	assert.Equal(t, schema.ExportStatus(""), replay.ExportStatus)
}
