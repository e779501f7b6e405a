package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/pkg/schema"
)

func receive(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func assertQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{
		ExportID:  "exp-1",
		AccountID: "acct-1",
		EventType: schema.EventExportCompleted,
		Payload:   map[string]any{"ambrosia_url": "artifacts/exp-1/ambrosia.json"},
	}))

	got := receive(t, ch)
	assert.Equal(t, "exp-1", got.ExportID)
	assert.Equal(t, schema.EventExportCompleted, got.EventType)
	assert.False(t, got.Timestamp.IsZero(), "timestamp is stamped on publish")
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter EventFilter
		event  StreamEvent
		want   bool
	}{
		{"empty matches all", EventFilter{}, StreamEvent{ExportID: "e"}, true},
		{"export match", EventFilter{ExportID: "e"}, StreamEvent{ExportID: "e"}, true},
		{"export mismatch", EventFilter{ExportID: "e"}, StreamEvent{ExportID: "f"}, false},
		{"account mismatch", EventFilter{AccountID: "a"}, StreamEvent{AccountID: "b"}, false},
		{"type match", EventFilter{EventTypes: []string{schema.EventExportFailed}}, StreamEvent{EventType: schema.EventExportFailed}, true},
		{"type mismatch", EventFilter{EventTypes: []string{schema.EventExportFailed}}, StreamEvent{EventType: schema.EventRenderCompleted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.matches(tt.event))
		})
	}
}

func TestFilteredSubscriberSkipsOtherExports(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{ExportID: "exp-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{ExportID: "exp-2", EventType: schema.EventExportStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{ExportID: "exp-1", EventType: schema.EventExportStarted}))

	assert.Equal(t, "exp-1", receive(t, ch).ExportID)
	assertQuiet(t, ch)
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
	require.NoError(t, hub.Publish(context.Background(), StreamEvent{ExportID: "exp-1"}))
}

func TestBackpressureDropsForSlowSubscriber(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{ExportID: "exp-1", EventType: schema.EventRenderCompleted}))
	}
	assert.Len(t, ch, defaultChannelBuffer)

	hub.mu.RLock()
	for _, sub := range hub.subs {
		assert.Equal(t, int64(10), sub.dropped.Load())
	}
	hub.mu.RUnlock()
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Publish(ctx, StreamEvent{ExportID: "exp-c", EventType: schema.EventRenderCompleted})
			}
		}()
		go func() {
			defer wg.Done()
			_, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, StreamEvent{ExportID: "exp-1"}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
