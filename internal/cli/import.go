package cli

import (
	"github.com/spf13/cobra"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/model"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/run"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

func newImportModelCmd(g *globalOptions) *cobra.Command {
	var opts model.ImportOptions
	cmd := &cobra.Command{
		Use:   "import-model",
		Short: "Import a registered model exported by export-models",
		Long: `Import the registered model in --input-dir (a directory holding model.json
and one directory per version run) into the tracking server. Each version's
run is recreated in --experiment-name, which is created if missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := tracking.NewClient(g.cfg.Tracking)
			if err != nil {
				return err
			}

			imp := model.NewImporter(client, run.NewImporter(client), g.cfg.Import, nil)
			report, err := imp.ImportModel(cmd.Context(), opts)
			if report != nil {
				printImportReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.InputDir, "input-dir", "", "directory produced by exporting a model")
	flags.StringVar(&opts.ModelName, "model", "", "destination model name (default: exported name)")
	flags.StringVar(&opts.ExperimentName, "experiment-name", "", "destination experiment for the version runs")
	flags.BoolVar(&opts.DeleteExisting, "delete-model", false, "delete the destination model and its versions first")
	_ = cmd.MarkFlagRequired("input-dir")
	_ = cmd.MarkFlagRequired("experiment-name")
	return cmd
}
