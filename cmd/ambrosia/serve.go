package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rendis/ambrosia/internal/export"
	"github.com/rendis/ambrosia/internal/janitor"
	ambmcp "github.com/rendis/ambrosia/pkg/mcp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the export consumer and the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg, newLogger(opts.cfg))
		},
	}
}

func runServe(ctx context.Context, cfg Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("shutdown", slog.String("error", cerr.Error()))
		}
	}()

	consumer := export.NewConsumer(a.svc)
	if err := consumer.Start(); err != nil {
		return err
	}
	defer consumer.Stop()

	if cfg.RenderDir != "" {
		r := newDirRenderer(afero.NewBasePathFs(afero.NewOsFs(), cfg.RenderDir), a.transport, logger)
		if err := r.Start(); err != nil {
			return err
		}
		defer r.Stop()
		logger.Info("serving snippets from directory", slog.String("render_dir", cfg.RenderDir))
	}

	jan, err := janitor.New(cfg.PurgeSchedule, logger, janitor.TrackingTask(a.tracking), janitor.CacheTask(a.store))
	if err != nil {
		return err
	}
	if err := jan.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = jan.Stop() }()

	sessions := ambmcp.NewSessionRegistry()
	srv := ambmcp.NewAmbrosiaServer(ambmcp.AmbrosiaServerDeps{
		Exporter:  a.svc,
		Inspector: a.inspector,
		Sessions:  sessions,
		Logger:    logger,
	})
	if err := ambmcp.NewMCPNotifier(srv.MCPServer(), sessions).Forward(ctx, a.hub, logger); err != nil {
		return err
	}

	logger.Info("ambrosia serving",
		slog.String("db_path", cfg.DBPath),
		slog.String("snippet_store", cfg.SnippetStore),
		slog.Int("pool_size", cfg.PoolSize),
		slog.Time("next_purge", jan.NextRun(time.Now())),
	)
	return srv.Serve(ctx)
}
