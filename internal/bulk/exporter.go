// Package bulk exports many experiments and registered models at once into a
// directory tree described by manifest files.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/experiment"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/model"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/resolver"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

// Client is the part of the tracking API the bulk exporter calls directly.
type Client interface {
	SearchExperiments(ctx context.Context, filter, viewType string) ([]tracking.Experiment, error)
	SearchRegisteredModels(ctx context.Context) ([]tracking.RegisteredModel, error)
	GetRun(ctx context.Context, runID string) (*tracking.Run, error)
}

// ExperimentExporter exports a single experiment.
type ExperimentExporter interface {
	Lookup(ctx context.Context, idOrName string) (*tracking.Experiment, error)
	Export(ctx context.Context, exp *tracking.Experiment, dir string, opts experiment.Options) (*experiment.Result, error)
}

// ModelExporter exports a single registered model.
type ModelExporter interface {
	Versions(ctx context.Context, name string, opts model.ExportOptions) ([]tracking.ModelVersion, error)
	ExportModel(ctx context.Context, name, dir string, opts model.ExportOptions) (*models.ModelOutcome, error)
}

// Exporter runs bulk exports with a bounded worker pool.
type Exporter struct {
	client      Client
	experiments ExperimentExporter
	models      ModelExporter
	threads     int
}

// NewExporter creates an Exporter running up to threads exports at a time.
func NewExporter(client Client, experiments ExperimentExporter, models ModelExporter, threads int) *Exporter {
	return &Exporter{
		client:      client,
		experiments: experiments,
		models:      models,
		threads:     max(1, threads),
	}
}

// ExperimentsOptions configure ExportExperiments. RunStartTime is in epoch
// milliseconds. ExperimentFilter keeps experiments whose name contains it and
// only applies when the selector lists experiments from the server.
type ExperimentsOptions struct {
	OutputDir         string
	ExportPermissions bool
	RunStartTime      int64
	ExportDeletedRuns bool
	NotebookFormats   []string
	UseThreads        bool
	ExperimentFilter  string
}

// ExportExperiments exports the experiments chosen by sel into
// opts.OutputDir/<experiment_id> and writes experiments.json, merging with
// one already in the directory. A failing experiment is recorded in the
// manifest and does not fail the call; only listing failures and output I/O
// errors are returned.
func (e *Exporter) ExportExperiments(ctx context.Context, sel resolver.Selector, opts ExperimentsOptions) (*models.Info, error) {
	log := slog.With("export_id", uuid.NewString())
	info, err := e.exportExperiments(ctx, log, sel, opts, nil)
	if err != nil {
		return nil, err
	}
	return info, interrupted(ctx)
}

// interrupted reports a cancelled export once its manifests are written.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("export interrupted, manifests hold partial results: %w", err)
	}
	return nil
}

// exportExperiments does the work of ExportExperiments. known maps experiment
// names to experiments already fetched by the caller.
func (e *Exporter) exportExperiments(ctx context.Context, log *slog.Logger, sel resolver.Selector, opts ExperimentsOptions, known map[string]tracking.Experiment) (*models.Info, error) {
	start := time.Now()
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	listed := make(map[string]tracking.Experiment, len(known))
	maps.Copy(listed, known)
	set, err := resolver.Resolve(ctx, sel, func(ctx context.Context) ([]string, error) {
		exps, err := e.client.SearchExperiments(ctx, "", tracking.ViewActiveOnly)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(exps))
		for i, exp := range exps {
			names[i] = exp.Name
			listed[exp.Name] = exp
		}
		return names, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving experiments: %w", err)
	}

	var units []models.ExportUnit
	for _, u := range set.Units {
		if set.FromListing && opts.ExperimentFilter != "" && !strings.Contains(u.ID, opts.ExperimentFilter) {
			continue
		}
		units = append(units, models.ExportUnit{ID: u.ID, SubItems: u.SubItems, OutputDir: opts.OutputDir})
	}
	log.Info("exporting experiments", "selector", sel.String(), "count", len(units), "threads", e.threads, "output_dir", opts.OutputDir)

	// Experiments found before a failure keep their ID and name in the outcome.
	resolved := make([]tracking.Experiment, len(units))
	outcomes := runConcurrent(ctx, e.threads, len(units),
		func(ctx context.Context, i int) (models.ExportOutcome, error) {
			return e.exportExperiment(ctx, units[i], listed, &resolved[i], opts)
		},
		func(i int, err error) models.ExportOutcome {
			log.Error("cannot export experiment", "experiment", units[i].ID, "error", err)
			o := models.ExportOutcome{
				ID:         units[i].ID,
				Name:       units[i].ID,
				OKRuns:     -1,
				FailedRuns: -1,
				Error:      models.ToUnitError(err, models.ErrExportFailed),
			}
			if exp := resolved[i]; exp.ExperimentID != "" {
				o.ID = exp.ExperimentID
				o.Name = exp.Name
			}
			return o
		},
	)

	incoming := &models.Manifest{
		MLflow: models.Payload{Experiments: outcomes},
		Info:   aggregateExperiments(units, outcomes, start),
	}
	incoming.Info.Options = opts.echo(sel)

	result := incoming
	exists, err := manifest.Exists(opts.OutputDir, manifest.ExperimentsFile)
	if err != nil {
		return nil, err
	}
	if exists {
		existing, err := manifest.Read[models.Payload, models.Info](filepath.Join(opts.OutputDir, manifest.ExperimentsFile))
		if err != nil {
			return nil, fmt.Errorf("reading existing experiments manifest: %w", err)
		}
		result = manifest.Merge(existing, incoming)
		log.Debug("merged with existing experiments manifest", "dir", opts.OutputDir)
	}
	if err := manifest.Write(opts.OutputDir, manifest.ExperimentsFile, result); err != nil {
		return nil, err
	}

	s := incoming.Info.Status
	log.Info("exported experiments",
		"experiments", s.Experiments,
		"failed_experiments", s.FailedExperiments,
		"ok_runs", s.OKRuns,
		"total_runs", s.TotalRuns,
		"duration", s.DurationSec,
	)
	return &result.Info, nil
}

// exportExperiment exports one unit. The experiment is stored in resolved as
// soon as it is known.
func (e *Exporter) exportExperiment(ctx context.Context, unit models.ExportUnit, listed map[string]tracking.Experiment, resolved *tracking.Experiment, opts ExperimentsOptions) (models.ExportOutcome, error) {
	start := time.Now()

	exp, ok := listed[unit.ID]
	if !ok {
		found, err := e.experiments.Lookup(ctx, unit.ID)
		if err != nil {
			return models.ExportOutcome{}, err
		}
		exp = *found
	}
	*resolved = exp

	res, err := e.experiments.Export(ctx, &exp, filepath.Join(unit.OutputDir, exp.ExperimentID), experiment.Options{
		RunStartTime:      opts.RunStartTime,
		ExportDeletedRuns: opts.ExportDeletedRuns,
		RunIDs:            unit.SubItems,
		ExportPermissions: opts.ExportPermissions,
		NotebookFormats:   opts.NotebookFormats,
	})
	if err != nil {
		return models.ExportOutcome{}, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}

	return models.ExportOutcome{
		ID:          exp.ExperimentID,
		Name:        exp.Name,
		OKRuns:      res.OKRuns,
		FailedRuns:  res.FailedRuns,
		DurationSec: since(start),
	}, nil
}

// aggregateExperiments builds the info section for one invocation. An
// experiment that never ran counts as failed with at least one failed run,
// or one per run it was asked to export.
func aggregateExperiments(units []models.ExportUnit, outcomes []models.ExportOutcome, start time.Time) models.Info {
	info := models.Info{
		ExperimentNames: make([]string, 0, len(outcomes)),
		Status:          models.Status{Experiments: len(outcomes)},
	}
	for i, o := range outcomes {
		info.ExperimentNames = append(info.ExperimentNames, o.Name)
		if o.NeverRan() {
			info.Status.FailedExperiments++
			info.Status.FailedRuns += max(1, len(units[i].SubItems))
			continue
		}
		info.Status.OKRuns += o.OKRuns
		info.Status.FailedRuns += o.FailedRuns
	}
	info.Status.TotalRuns = info.Status.OKRuns + info.Status.FailedRuns
	info.Status.DurationSec = since(start)
	return info
}

func (o ExperimentsOptions) echo(sel resolver.Selector) map[string]any {
	var runStart any
	if o.RunStartTime > 0 {
		runStart = time.UnixMilli(o.RunStartTime).UTC().Format(time.RFC3339)
	}
	var filter any
	if o.ExperimentFilter != "" {
		filter = o.ExperimentFilter
	}
	return map[string]any{
		"experiments":         sel.String(),
		"output_dir":          o.OutputDir,
		"export_permissions":  o.ExportPermissions,
		"run_start_time":      runStart,
		"export_deleted_runs": o.ExportDeletedRuns,
		"notebook_formats":    o.NotebookFormats,
		"use_threads":         o.UseThreads,
		"experiment_filter":   filter,
	}
}

func since(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*10) / 10
}
