package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/internal/streaming"
	"github.com/rendis/ambrosia/pkg/schema"
)

type recordingNotifier struct {
	got []*ExportNotification
	err error
}

func (r *recordingNotifier) ExportFinished(_ context.Context, n *ExportNotification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestFromSummary(t *testing.T) {
	n := FromSummary(&schema.ExportSummary{
		ID: "exp-1", AccountID: "acct", ElementID: "A", ElementType: schema.ElementTypeActivity,
		Status: schema.ExportStatusCompleted, AmbrosiaURL: "artifacts/exp-1/ambrosia.json",
	}, "")
	assert.Equal(t, "exp-1", n.ExportID)
	assert.Equal(t, schema.EventExportCompleted, n.EventType())

	n.Status = schema.ExportStatusFailed
	assert.Equal(t, schema.EventExportFailed, n.EventType())
}

func TestHubNotifier(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{AccountID: "acct"})
	require.NoError(t, err)
	defer cancel()

	n := &ExportNotification{ExportID: "exp-1", AccountID: "acct", Status: schema.ExportStatusFailed, ErrorMsg: "render failed"}
	require.NoError(t, NewHubNotifier(hub).ExportFinished(context.Background(), n))

	select {
	case evt := <-ch:
		assert.Equal(t, "exp-1", evt.ExportID)
		assert.Equal(t, schema.EventExportFailed, evt.EventType)
		assert.Same(t, n, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("session gone")}
	m := Multi{ok, nil, bad}

	err := m.ExportFinished(context.Background(), &ExportNotification{ExportID: "exp-1"})
	assert.ErrorContains(t, err, "session gone")
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)

	assert.NoError(t, Nop{}.ExportFinished(context.Background(), nil))
}
