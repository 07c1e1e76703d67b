// Package cli implements the mlflow-export-import commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/config"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// globalOptions holds the persistent flags and the configuration they load.
type globalOptions struct {
	configPath  string
	logLevel    string
	trackingURI string

	cfg models.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "mlflow-export-import",
		Short: "Copy MLflow experiments, runs and registered models between tracking servers",
		Long: `mlflow-export-import exports experiments, runs and registered models from an
MLflow tracking server into a directory tree, and imports registered models
from such a tree into another tracking server.

The tracking server is taken from --tracking-uri, the config file or
MLFLOW_TRACKING_URI.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "YAML or TOML config file")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&g.trackingURI, "tracking-uri", "", "tracking server URI")

	// Subcommands (alphabetical)
	cmd.AddCommand(newExportAllCmd(g))
	cmd.AddCommand(newExportExperimentsCmd(g))
	cmd.AddCommand(newExportModelsCmd(g))
	cmd.AddCommand(newImportModelCmd(g))
	return cmd
}

// load reads the config file and environment, applies flag overrides and
// installs the logger.
func (g *globalOptions) load() error {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.trackingURI != "" {
		cfg.Tracking.URI = g.trackingURI
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	g.cfg = cfg
	return nil
}

// Execute runs the CLI. Per-entity failures are reported in the output and
// manifests; only fatal errors are returned.
func Execute(ctx context.Context) error {
	return newRootCmd(os.Stdout).ExecuteContext(ctx)
}
