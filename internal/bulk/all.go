package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/resolver"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

// AllStages is echoed in manifest.json when no stage filter is given.
const AllStages = "Production,Staging,Archived,None"

// AllOptions configure ExportAll.
type AllOptions struct {
	OutputDir            string
	Stages               []string
	ExportLatestVersions bool
	RunStartTime         int64
	ExportDeletedRuns    bool
	ExportPermissions    bool
	NotebookFormats      []string
	UseThreads           bool
	ExperimentFilter     string
}

// ExportAll exports every registered model with all runs of their
// experiments, then every remaining experiment, into opts.OutputDir. The
// second experiment export merges into the experiments.json written by the
// first. A summary manifest.json is written last.
func (e *Exporter) ExportAll(ctx context.Context, opts AllOptions) (*models.SummaryInfo, error) {
	start := time.Now()
	log := slog.With("export_id", uuid.NewString())

	res, err := e.exportModels(ctx, log, resolver.All(), ModelsOptions{
		OutputDir:            opts.OutputDir,
		Stages:               opts.Stages,
		ExportLatestVersions: opts.ExportLatestVersions,
		ExportAllRuns:        true,
		ExportPermissions:    opts.ExportPermissions,
		ExportDeletedRuns:    opts.ExportDeletedRuns,
		NotebookFormats:      opts.NotebookFormats,
		UseThreads:           opts.UseThreads,
	})
	if err != nil {
		return nil, err
	}
	if err := interrupted(ctx); err != nil {
		return res, err
	}

	exps, err := e.client.SearchExperiments(ctx, "", tracking.ViewActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("listing experiments: %w", err)
	}
	var exported []string
	if res.Status.Experiments != nil {
		exported = res.Status.Experiments.ExperimentNames
	}
	remaining, known := remainingExperiments(exps, exported, opts.ExperimentFilter)
	log.Info("exporting remaining experiments", "count", len(remaining), "already_exported", len(exported))

	expInfo, err := e.exportExperiments(ctx, log, resolver.ExplicitList(remaining...), ExperimentsOptions{
		OutputDir:         filepath.Join(opts.OutputDir, ExperimentsDir),
		ExportPermissions: opts.ExportPermissions,
		RunStartTime:      opts.RunStartTime,
		ExportDeletedRuns: opts.ExportDeletedRuns,
		NotebookFormats:   opts.NotebookFormats,
		UseThreads:        opts.UseThreads,
		ExperimentFilter:  opts.ExperimentFilter,
	}, known)
	if err != nil {
		return nil, err
	}

	summary := &models.Summary{
		Info: models.SummaryInfo{
			Options: opts.echo(),
			Status: models.SummaryStatus{
				DurationSec: since(start),
				Models:      res.Status.Models,
				Experiments: expInfo,
			},
		},
	}
	if err := manifest.Write(opts.OutputDir, manifest.SummaryFile, summary); err != nil {
		return nil, err
	}

	log.Info("exported tracking server", "duration", summary.Info.Status.DurationSec)
	return &summary.Info, interrupted(ctx)
}

// remainingExperiments returns the sorted names of listed experiments not in
// exported whose name contains filter, and the listed experiments by name.
func remainingExperiments(listed []tracking.Experiment, exported []string, filter string) ([]string, map[string]tracking.Experiment) {
	done := make(map[string]bool, len(exported))
	for _, name := range exported {
		done[name] = true
	}

	known := make(map[string]tracking.Experiment, len(listed))
	var remaining []string
	for _, exp := range listed {
		known[exp.Name] = exp
		if done[exp.Name] || !strings.Contains(exp.Name, filter) {
			continue
		}
		remaining = append(remaining, exp.Name)
	}
	slices.Sort(remaining)
	return slices.Compact(remaining), known
}

func (o AllOptions) echo() map[string]any {
	stages := AllStages
	if len(o.Stages) > 0 {
		stages = strings.Join(o.Stages, ",")
	}
	var filter any
	if o.ExperimentFilter != "" {
		filter = o.ExperimentFilter
	}
	return map[string]any{
		"stages":                 stages,
		"export_latest_versions": o.ExportLatestVersions,
		"export_permissions":     o.ExportPermissions,
		"notebook_formats":       o.NotebookFormats,
		"use_threads":            o.UseThreads,
		"output_dir":             o.OutputDir,
		"experiment_filter":      filter,
	}
}
