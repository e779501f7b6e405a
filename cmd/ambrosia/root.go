package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/ambrosia/internal/logging"
)

type rootOptions struct {
	configPath string
	cfg        Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ambrosia",
		Short: "Export courseware trees into ambrosia documents",
		Long: `ambrosia fans a courseware export out into one render request per element,
tracks the rendered snippets as they arrive and reduces them into a single
ambrosia document once every request has been answered.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(viper.New(), opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.ambrosia/settings.json)")

	cmd.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newErrorsCmd(opts),
		newPurgeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// newLogger writes to stderr; stdout carries MCP traffic under serve.
func newLogger(cfg Config) *slog.Logger {
	return buildLogger(os.Stderr, cfg)
}

func buildLogger(w io.Writer, cfg Config) *slog.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		return logging.NewJSONLogger(w, level)
	}
	return logging.NewLogger(w, level)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
