package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/model"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/resolver"
)

// Subdirectories of a models export.
const (
	ExperimentsDir = "experiments"
	ModelsDir      = "models"
)

// ModelsOptions configure ExportModels. With ExportAllRuns every run of the
// experiments backing the selected versions is exported, not just the runs
// behind those versions.
type ModelsOptions struct {
	OutputDir            string
	Stages               []string
	ExportLatestVersions bool
	ExportAllRuns        bool
	ExportPermissions    bool
	ExportDeletedRuns    bool
	NotebookFormats      []string
	UseThreads           bool
}

// ExportModels exports the registered models chosen by sel into
// opts.OutputDir/models, after exporting the experiments holding the runs
// behind their versions into opts.OutputDir/experiments. It writes
// models/models.json and manifest.json.
func (e *Exporter) ExportModels(ctx context.Context, sel resolver.Selector, opts ModelsOptions) (*models.SummaryInfo, error) {
	log := slog.With("export_id", uuid.NewString())
	info, err := e.exportModels(ctx, log, sel, opts)
	if err != nil {
		return nil, err
	}
	return info, interrupted(ctx)
}

func (e *Exporter) exportModels(ctx context.Context, log *slog.Logger, sel resolver.Selector, opts ModelsOptions) (*models.SummaryInfo, error) {
	start := time.Now()
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	set, err := resolver.Resolve(ctx, sel, func(ctx context.Context) ([]string, error) {
		rms, err := e.client.SearchRegisteredModels(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(rms))
		for i, rm := range rms {
			names[i] = rm.Name
		}
		return names, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving models: %w", err)
	}
	names := set.IDs()
	versionOpts := model.ExportOptions{Stages: opts.Stages, LatestOnly: opts.ExportLatestVersions}
	log.Info("exporting models", "selector", sel.String(), "count", len(names), "threads", e.threads)

	expSel := e.experimentsOfModels(ctx, log, names, versionOpts, opts.ExportAllRuns)
	expInfo, err := e.exportExperiments(ctx, log, expSel, ExperimentsOptions{
		OutputDir:         filepath.Join(opts.OutputDir, ExperimentsDir),
		ExportPermissions: opts.ExportPermissions,
		ExportDeletedRuns: opts.ExportDeletedRuns,
		NotebookFormats:   opts.NotebookFormats,
		UseThreads:        opts.UseThreads,
	}, nil)
	if err != nil {
		return nil, err
	}

	modelsInfo, err := e.exportModelSet(ctx, log, names, filepath.Join(opts.OutputDir, ModelsDir), versionOpts, opts)
	if err != nil {
		return nil, err
	}

	summary := &models.Summary{
		Info: models.SummaryInfo{
			Options: opts.echo(&sel),
			Status: models.SummaryStatus{
				DurationSec: since(start),
				Models:      modelsInfo,
				Experiments: expInfo,
			},
		},
	}
	if err := manifest.Write(opts.OutputDir, manifest.SummaryFile, summary); err != nil {
		return nil, err
	}

	log.Info("exported models and their runs", "models", len(names), "duration", summary.Info.Status.DurationSec)
	return &summary.Info, nil
}

// experimentsOfModels selects the experiments holding the runs behind the
// selected versions of each model. A model or run that cannot be read is
// skipped here; the model export reports it.
func (e *Exporter) experimentsOfModels(ctx context.Context, log *slog.Logger, names []string, opts model.ExportOptions, allRuns bool) resolver.Selector {
	runsByExp := make(map[string][]string)
	for _, name := range names {
		versions, err := e.models.Versions(ctx, name, opts)
		if err != nil {
			log.Warn("cannot list model versions", "model", name, "error", err)
			continue
		}
		for _, v := range versions {
			r, err := e.client.GetRun(ctx, v.RunID)
			if err != nil {
				log.Warn("cannot get run of model version", "model", name, "version", v.Version, "run_id", v.RunID, "error", err)
				continue
			}
			expID := r.Info.ExperimentID
			if !slices.Contains(runsByExp[expID], v.RunID) {
				runsByExp[expID] = append(runsByExp[expID], v.RunID)
			}
		}
	}

	if allRuns {
		ids := make([]string, 0, len(runsByExp))
		for id := range runsByExp {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		return resolver.ExplicitList(ids...)
	}
	return resolver.IDToSubItems(runsByExp)
}

// exportModelSet exports each model into dir/<escaped name> and writes
// dir/models.json.
func (e *Exporter) exportModelSet(ctx context.Context, log *slog.Logger, names []string, dir string, versionOpts model.ExportOptions, opts ModelsOptions) (*models.Info, error) {
	start := time.Now()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating models directory: %w", err)
	}

	outcomes := runConcurrent(ctx, e.threads, len(names),
		func(ctx context.Context, i int) (models.ModelOutcome, error) {
			began := time.Now()
			out, err := e.models.ExportModel(ctx, names[i], filepath.Join(dir, url.PathEscape(names[i])), versionOpts)
			if err != nil {
				return models.ModelOutcome{}, err
			}
			out.DurationSec = since(began)
			return *out, nil
		},
		func(i int, err error) models.ModelOutcome {
			log.Error("cannot export model", "model", names[i], "error", err)
			return models.ModelOutcome{
				Name:  names[i],
				Dir:   filepath.Join(dir, url.PathEscape(names[i])),
				Error: models.ToUnitError(err, models.ErrExportFailed),
			}
		},
	)

	info := models.Info{
		ModelNames: names,
		Options:    opts.echo(nil),
		Status:     models.Status{Models: len(outcomes)},
	}
	for _, o := range outcomes {
		if o.Error != nil {
			info.FailedModels = append(info.FailedModels, o.Name)
			info.Status.FailedModels++
			continue
		}
		info.Status.OKModels++
	}
	info.Status.DurationSec = since(start)
	info.Options["output_dir"] = dir

	m := &models.Manifest{MLflow: models.Payload{Models: outcomes}, Info: info}
	if err := manifest.Write(dir, manifest.ModelsFile, m); err != nil {
		return nil, err
	}

	log.Info("exported models", "models", info.Status.Models, "failed_models", info.Status.FailedModels, "duration", info.Status.DurationSec)
	return &m.Info, nil
}

func (o ModelsOptions) echo(sel *resolver.Selector) map[string]any {
	m := map[string]any{
		"stages":                 strings.Join(o.Stages, ","),
		"export_latest_versions": o.ExportLatestVersions,
		"export_all_runs":        o.ExportAllRuns,
		"export_permissions":     o.ExportPermissions,
		"export_deleted_runs":    o.ExportDeletedRuns,
		"notebook_formats":       o.NotebookFormats,
		"use_threads":            o.UseThreads,
		"output_dir":             o.OutputDir,
	}
	if sel != nil {
		m["models"] = sel.String()
	}
	return m
}
