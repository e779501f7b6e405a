package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/ambrosia/internal/store"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		projectID   string
		workspaceID string
		accountID   string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "status [export-id]",
		Short: "Show the status of an export, or list exports when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, newLogger(opts.cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				summaries, err := a.svc.ListSummaries(ctx, store.SummaryFilter{
					ProjectID:   projectID,
					WorkspaceID: workspaceID,
					AccountID:   accountID,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summaries)
			}
			status, err := a.svc.Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "filter listed exports by project")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "filter listed exports by workspace")
	cmd.Flags().StringVar(&accountID, "account", "", "filter listed exports by account")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of listed exports")
	return cmd
}

func newErrorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "errors <export-id>",
		Short: "List render and reducer errors of an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, newLogger(opts.cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			renderErrs, err := a.svc.GetExportErrors(ctx, args[0])
			if err != nil {
				return err
			}
			reducerErrs, err := a.svc.GetAmbrosiaReducerErrors(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"export_id":      args[0],
				"render_errors":  renderErrs,
				"reducer_errors": reducerErrs,
			})
		},
	}
}
