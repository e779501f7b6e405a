package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/ambrosia/internal/janitor"
	"github.com/rendis/ambrosia/internal/tracking"
)

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired tracking entries and cached snippets once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			set := tracking.NewStoreSet(st, tracking.WithTTL(opts.cfg.TrackingTTL))
			jan, err := janitor.New(opts.cfg.PurgeSchedule, newLogger(opts.cfg),
				janitor.TrackingTask(set), janitor.CacheTask(st))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jan.RunOnce(ctx))
		},
	}
}
