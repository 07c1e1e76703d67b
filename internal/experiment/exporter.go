// Package experiment exports one experiment and its runs.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/juju/errors"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

// Client is the part of the tracking API used to export experiments.
type Client interface {
	GetExperiment(ctx context.Context, experimentID string) (*tracking.Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error)
	SearchRuns(ctx context.Context, experimentID, filter, viewType string) ([]tracking.Run, error)
}

// RunExporter writes a single run into a directory.
type RunExporter interface {
	ExportRun(ctx context.Context, runID, dir string) (*tracking.Run, error)
}

// Options control which runs of an experiment are exported. RunStartTime is
// in epoch milliseconds; zero exports runs regardless of start time. A
// non-empty RunIDs restricts the export to those runs.
type Options struct {
	RunStartTime      int64
	ExportDeletedRuns bool
	RunIDs            []string
	ExportPermissions bool
	NotebookFormats   []string
}

// Payload is the payload section of experiment.json.
type Payload struct {
	Experiment tracking.Experiment `json:"experiment"`
	Runs       []string            `json:"runs"`
}

// Info is the info section of experiment.json.
type Info struct {
	NumTotalRuns  int            `json:"num_total_runs"`
	NumOKRuns     int            `json:"num_ok_runs"`
	NumFailedRuns int            `json:"num_failed_runs"`
	FailedRuns    []string       `json:"failed_runs,omitempty"`
	Options       map[string]any `json:"options"`
}

// File is the full experiment.json document.
type File = models.Envelope[Payload, Info]

// Result summarizes one experiment export.
type Result struct {
	Experiment tracking.Experiment
	OKRuns     int
	FailedRuns int
}

type Exporter struct {
	client Client
	runs   RunExporter
}

func NewExporter(client Client, runs RunExporter) *Exporter {
	return &Exporter{client: client, runs: runs}
}

// Lookup finds an experiment by ID, falling back to its name.
func (e *Exporter) Lookup(ctx context.Context, idOrName string) (*tracking.Experiment, error) {
	exp, err := e.client.GetExperiment(ctx, idOrName)
	if err == nil {
		return exp, nil
	}
	if !errors.Is(err, errors.NotFound) && !errors.Is(err, errors.NotValid) {
		return nil, fmt.Errorf("getting experiment %q: %w", idOrName, err)
	}

	exp, err = e.client.GetExperimentByName(ctx, idOrName)
	if errors.Is(err, errors.NotFound) {
		return nil, models.WrapExportError(models.ErrExperimentNotFound, err, "experiment %q", idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("getting experiment %q by name: %w", idOrName, err)
	}
	return exp, nil
}

// Export writes experiment.json and one subdirectory per run into dir. A run
// that fails to export is counted and logged; it does not fail the experiment.
func (e *Exporter) Export(ctx context.Context, exp *tracking.Experiment, dir string, opts Options) (*Result, error) {
	runIDs, err := e.runIDs(ctx, exp.ExperimentID, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{Experiment: *exp}
	var exported, failed []string
	for _, id := range runIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := e.runs.ExportRun(ctx, id, filepath.Join(dir, id)); err != nil {
			slog.Warn("run export failed", "experiment_id", exp.ExperimentID, "run_id", id, "error", err)
			failed = append(failed, id)
			continue
		}
		exported = append(exported, id)
	}
	res.OKRuns = len(exported)
	res.FailedRuns = len(failed)

	file := &File{
		MLflow: Payload{Experiment: *exp, Runs: exported},
		Info: Info{
			NumTotalRuns:  len(runIDs),
			NumOKRuns:     res.OKRuns,
			NumFailedRuns: res.FailedRuns,
			FailedRuns:    failed,
			Options:       opts.echo(),
		},
	}
	if err := manifest.Write(dir, manifest.ExperimentFile, file); err != nil {
		return nil, err
	}

	slog.Info("exported experiment",
		"id", exp.ExperimentID,
		"name", exp.Name,
		"ok_runs", res.OKRuns,
		"failed_runs", res.FailedRuns,
	)
	return res, nil
}

func (e *Exporter) runIDs(ctx context.Context, experimentID string, opts Options) ([]string, error) {
	if len(opts.RunIDs) > 0 {
		return opts.RunIDs, nil
	}

	view := tracking.ViewActiveOnly
	if opts.ExportDeletedRuns {
		view = tracking.ViewAll
	}
	filter := ""
	if opts.RunStartTime > 0 {
		filter = fmt.Sprintf("attributes.start_time >= %d", opts.RunStartTime)
	}

	runs, err := e.client.SearchRuns(ctx, experimentID, filter, view)
	if err != nil {
		return nil, fmt.Errorf("searching runs of experiment %s: %w", experimentID, err)
	}
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.Info.RunID)
	}
	return ids, nil
}

func (o Options) echo() map[string]any {
	m := map[string]any{
		"export_deleted_runs": o.ExportDeletedRuns,
		"export_permissions":  o.ExportPermissions,
		"notebook_formats":    o.NotebookFormats,
	}
	if o.RunStartTime > 0 {
		m["run_start_time"] = time.UnixMilli(o.RunStartTime).UTC().Format(time.RFC3339)
	}
	if len(o.RunIDs) > 0 {
		m["run_ids"] = o.RunIDs
	}
	return m
}
