package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/ambrosia/internal/blob"
	"github.com/rendis/ambrosia/internal/courseware"
	"github.com/rendis/ambrosia/internal/export"
	"github.com/rendis/ambrosia/internal/notify"
	"github.com/rendis/ambrosia/internal/snippets"
	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/internal/streaming"
	"github.com/rendis/ambrosia/internal/tracking"
	"github.com/rendis/ambrosia/internal/transport"
)

// app is the wired export stack shared by the CLI commands.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	blobs     *blob.FSStorage
	tracking  *tracking.StoreSet
	transport *transport.MemoryTransport
	hub       *streaming.MemoryHub
	tree      *courseware.FileProvider
	svc       *export.Service
	inspector *export.Inspector
}

// openStore opens and migrates the database at cfg.DBPath.
func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newApp builds the orchestrator from cfg. Without a courseware file every
// export fails its tree lookup with NOT_FOUND.
func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: st}
	if err := a.wire(); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func (a *app) wire() error {
	var err error
	if a.blobs, err = blob.NewOSStorage(a.cfg.BlobRoot); err != nil {
		return err
	}
	mode, err := snippets.ParseMode(a.cfg.SnippetStore)
	if err != nil {
		return err
	}
	strategy, err := snippets.New(mode, snippets.Deps{
		Store:    a.store,
		Blob:     a.blobs,
		Bucket:   a.cfg.SnippetBucket,
		CacheTTL: a.cfg.CacheTTL,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	if a.cfg.CoursewareFile != "" {
		if a.tree, err = courseware.LoadFileProvider(a.cfg.CoursewareFile); err != nil {
			return err
		}
	} else {
		a.tree = courseware.NewFileProvider(nil)
	}
	filter, err := export.NewRenderFilter(a.cfg.RenderFilter)
	if err != nil {
		return err
	}

	a.tracking = tracking.NewStoreSet(a.store, tracking.WithTTL(a.cfg.TrackingTTL))
	a.transport = transport.NewMemoryTransport(a.cfg.PoolSize, a.cfg.Redelivery, a.logger)
	a.hub = streaming.NewMemoryHub()

	a.svc, err = export.NewService(export.Deps{
		Store:     a.store,
		Tracking:  a.tracking,
		Snippets:  strategy,
		Blob:      a.blobs,
		Transport: a.transport,
		Tree:      a.tree,
		Ancestry:  a.tree,
		Notifier:  notify.NewHubNotifier(a.hub),
	}, export.Config{
		ArtifactBucket: a.cfg.ArtifactBucket,
		Filter:         filter,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}
	a.inspector = export.NewInspector(a.store, a.blobs, a.cfg.ArtifactBucket)
	return nil
}

// Close releases the transport and the database.
func (a *app) Close() error {
	var errs []error
	if a.transport != nil {
		errs = append(errs, a.transport.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
