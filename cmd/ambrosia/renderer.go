package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/rendis/ambrosia/internal/transport"
	"github.com/rendis/ambrosia/pkg/schema"
)

// dirRenderer answers render requests with pre-rendered snippets stored as
// "<element-id>.json" files. A missing file is reported as a render error.
type dirRenderer struct {
	fs        afero.Fs
	transport transport.Transport
	logger    *slog.Logger
	unsub     func()
}

func newDirRenderer(fs afero.Fs, tr transport.Transport, logger *slog.Logger) *dirRenderer {
	return &dirRenderer{fs: fs, transport: tr, logger: logger}
}

func (r *dirRenderer) Start() error {
	unsub, err := r.transport.Subscribe(transport.TopicRequest, r.handle)
	if err != nil {
		return err
	}
	r.unsub = unsub
	return nil
}

func (r *dirRenderer) Stop() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

func (r *dirRenderer) handle(ctx context.Context, msg transport.Message) error {
	var req schema.ExportRequestNotification
	if err := transport.Decode(msg, &req); err != nil {
		return err
	}
	data, err := afero.ReadFile(r.fs, req.ElementID+".json")
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("no snippet for element",
			slog.String("export_id", req.ExportID),
			slog.String("element_id", req.ElementID),
		)
		return transport.PublishJSON(ctx, r.transport, transport.TopicError, &schema.ExportErrorNotification{
			NotificationID: req.NotificationID,
			ExportID:       req.ExportID,
			ElementID:      req.ElementID,
			ElementType:    req.ElementType,
			ErrorMessage:   "no snippet file for element " + req.ElementID,
			Cause:          schema.ErrCodeRender,
		})
	}
	if err != nil {
		// Redelivered by the transport.
		return err
	}
	return transport.PublishJSON(ctx, r.transport, transport.TopicResult, &schema.ExportAmbrosiaSnippet{
		ExportID:       req.ExportID,
		NotificationID: req.NotificationID,
		ElementID:      req.ElementID,
		ElementType:    req.ElementType,
		AccountID:      req.AccountID,
		Snippet:        string(data),
	})
}
