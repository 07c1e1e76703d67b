package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/bulk"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/config"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/experiment"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/model"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/resolver"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/run"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/util"
)

// exportFlags are shared by the export commands.
type exportFlags struct {
	outputDir         string
	exportPermissions bool
	exportDeletedRuns bool
	notebookFormats   string
	useThreads        bool
}

func (f *exportFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.outputDir, "output-dir", "", "output directory")
	flags.BoolVar(&f.exportPermissions, "export-permissions", false, "export permissions (recorded only)")
	flags.BoolVar(&f.exportDeletedRuns, "export-deleted-runs", false, "also export deleted runs")
	flags.StringVar(&f.notebookFormats, "notebook-formats", "", "comma-separated notebook formats (recorded only)")
	flags.BoolVar(&f.useThreads, "use-threads", false, "export in parallel, one worker per CPU unless export.threads is set")
	_ = cmd.MarkFlagRequired("output-dir")
}

// newBulkExporter wires the bulk exporter to the configured tracking server.
func (g *globalOptions) newBulkExporter(useThreads bool) (*bulk.Exporter, error) {
	client, err := tracking.NewClient(g.cfg.Tracking)
	if err != nil {
		return nil, err
	}
	exportCfg := g.cfg.Export
	exportCfg.UseThreads = exportCfg.UseThreads || useThreads

	runs := run.NewExporter(client, client.URI())
	return bulk.NewExporter(
		client,
		experiment.NewExporter(client, runs),
		model.NewExporter(client, runs),
		config.ExportThreads(exportCfg),
	), nil
}

func newExportExperimentsCmd(g *globalOptions) *cobra.Command {
	var (
		common           exportFlags
		experiments      string
		runStartTime     string
		experimentFilter string
	)
	cmd := &cobra.Command{
		Use:   "export-experiments",
		Short: "Export experiments and their runs",
		Long: `Export experiments and their runs into --output-dir/<experiment_id> and
write experiments.json.

--experiments accepts "all", a comma-separated list of names or IDs, a prefix
ending in "*", or a .txt file with one name or ID per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startMillis, err := parseStartTime(runStartTime)
			if err != nil {
				return err
			}
			e, err := g.newBulkExporter(common.useThreads)
			if err != nil {
				return err
			}

			info, err := e.ExportExperiments(cmd.Context(), resolver.ParseSelector(experiments), bulk.ExperimentsOptions{
				OutputDir:         common.outputDir,
				ExportPermissions: common.exportPermissions,
				RunStartTime:      startMillis,
				ExportDeletedRuns: common.exportDeletedRuns,
				NotebookFormats:   util.SplitList(common.notebookFormats),
				UseThreads:        common.useThreads,
				ExperimentFilter:  experimentFilter,
			})
			if info != nil {
				printExperiments(cmd.OutOrStdout(), info)
			}
			return err
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&experiments, "experiments", "", `experiments to export ("all", names, IDs, "prefix*" or a .txt file)`)
	cmd.Flags().StringVar(&runStartTime, "run-start-time", "", "only export runs started at or after this time (YYYY-MM-DD)")
	cmd.Flags().StringVar(&experimentFilter, "experiment-filter", "", "only export listed experiments whose name contains this string")
	_ = cmd.MarkFlagRequired("experiments")
	return cmd
}

func newExportModelsCmd(g *globalOptions) *cobra.Command {
	var (
		common               exportFlags
		modelNames           string
		stages               string
		exportLatestVersions bool
		exportAllRuns        bool
	)
	cmd := &cobra.Command{
		Use:   "export-models",
		Short: "Export registered models with the experiments backing their versions",
		Long: `Export registered models into --output-dir/models and the experiments
holding the runs behind their versions into --output-dir/experiments.

--models accepts "all", a comma-separated list of names, a prefix ending in
"*", or a .txt file with one name per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.newBulkExporter(common.useThreads)
			if err != nil {
				return err
			}

			info, err := e.ExportModels(cmd.Context(), resolver.ParseSelector(modelNames), bulk.ModelsOptions{
				OutputDir:            common.outputDir,
				Stages:               util.SplitList(stages),
				ExportLatestVersions: exportLatestVersions,
				ExportAllRuns:        exportAllRuns,
				ExportPermissions:    common.exportPermissions,
				ExportDeletedRuns:    common.exportDeletedRuns,
				NotebookFormats:      util.SplitList(common.notebookFormats),
				UseThreads:           common.useThreads,
			})
			if info != nil {
				printSummary(cmd.OutOrStdout(), info)
			}
			return err
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&modelNames, "models", "", `models to export ("all", names, "prefix*" or a .txt file)`)
	cmd.Flags().StringVar(&stages, "stages", "", "comma-separated stages of versions to export (default all)")
	cmd.Flags().BoolVar(&exportLatestVersions, "export-latest-versions", false, "export only the latest version per stage")
	cmd.Flags().BoolVar(&exportAllRuns, "export-all-runs", false, "export all runs of the experiments backing the versions")
	_ = cmd.MarkFlagRequired("models")
	return cmd
}

func newExportAllCmd(g *globalOptions) *cobra.Command {
	var (
		common               exportFlags
		stages               string
		exportLatestVersions bool
		runStartTime         string
		experimentFilter     string
	)
	cmd := &cobra.Command{
		Use:   "export-all",
		Short: "Export every registered model and experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startMillis, err := parseStartTime(runStartTime)
			if err != nil {
				return err
			}
			e, err := g.newBulkExporter(common.useThreads)
			if err != nil {
				return err
			}

			info, err := e.ExportAll(cmd.Context(), bulk.AllOptions{
				OutputDir:            common.outputDir,
				Stages:               util.SplitList(stages),
				ExportLatestVersions: exportLatestVersions,
				RunStartTime:         startMillis,
				ExportDeletedRuns:    common.exportDeletedRuns,
				ExportPermissions:    common.exportPermissions,
				NotebookFormats:      util.SplitList(common.notebookFormats),
				UseThreads:           common.useThreads,
				ExperimentFilter:     experimentFilter,
			})
			if info != nil {
				printSummary(cmd.OutOrStdout(), info)
			}
			return err
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&stages, "stages", "", "comma-separated stages of versions to export (default all)")
	cmd.Flags().BoolVar(&exportLatestVersions, "export-latest-versions", false, "export only the latest version per stage")
	cmd.Flags().StringVar(&runStartTime, "run-start-time", "", "only export runs of remaining experiments started at or after this time (YYYY-MM-DD)")
	cmd.Flags().StringVar(&experimentFilter, "experiment-filter", "", "only export remaining experiments whose name contains this string")
	return cmd
}

func parseStartTime(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	ms, err := util.ParseRunStartTime(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --run-start-time: %w", err)
	}
	return ms, nil
}
