package run

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

// Limits of a single log-batch request. The server also caps the total
// number of entities.
const (
	maxBatchEntities = 1000
	maxBatchParams   = 100
	maxBatchTags     = 100
)

// SourceRunIDTag records the source run ID on an imported run.
const SourceRunIDTag = "mlflow_export_import.source.run_id"

// Tags the server sets itself. They are not copied.
const systemTagPrefix = "mlflow."

// Creator creates and populates runs on the destination tracking server.
type Creator interface {
	CreateRun(ctx context.Context, req tracking.CreateRunRequest) (*tracking.RunInfo, error)
	LogBatch(ctx context.Context, runID string, metrics []tracking.Metric, params []tracking.Param, tags []tracking.Tag) error
	UpdateRun(ctx context.Context, runID, status string, endTime int64) error
}

type Importer struct {
	client Creator
}

func NewImporter(client Creator) *Importer {
	return &Importer{client: client}
}

// ImportRun recreates the run exported in inputDir under experimentID.
func (i *Importer) ImportRun(ctx context.Context, experimentID, inputDir string) (models.ImportedRun, error) {
	src, err := manifest.Read[tracking.Run, Info](filepath.Join(inputDir, manifest.RunFile))
	if err != nil {
		return models.ImportedRun{}, err
	}
	srcRun := src.MLflow

	created, err := i.client.CreateRun(ctx, tracking.CreateRunRequest{
		ExperimentID: experimentID,
		RunName:      srcRun.Info.RunName,
		StartTime:    srcRun.Info.StartTime,
	})
	if err != nil {
		return models.ImportedRun{}, fmt.Errorf("creating run for %s: %w", srcRun.Info.RunID, err)
	}

	if err := i.populate(ctx, created, srcRun, inputDir); err != nil {
		if uerr := i.client.UpdateRun(ctx, created.RunID, tracking.RunStatusFailed, 0); uerr != nil {
			slog.Warn("failed to mark run as failed", "run_id", created.RunID, "error", uerr)
		}
		return models.ImportedRun{}, models.WrapExportError(models.ErrRunImportFailed, err, "importing run %s", srcRun.Info.RunID)
	}

	status := srcRun.Info.Status
	if status == "" || status == tracking.RunStatusRunning {
		status = tracking.RunStatusFinished
	}
	if err := i.client.UpdateRun(ctx, created.RunID, status, srcRun.Info.EndTime); err != nil {
		return models.ImportedRun{}, fmt.Errorf("updating run %s: %w", created.RunID, err)
	}

	slog.Info("imported run", "source_run_id", srcRun.Info.RunID, "run_id", created.RunID, "experiment_id", experimentID)
	return models.ImportedRun{RunID: created.RunID, ArtifactURI: created.ArtifactURI}, nil
}

func (i *Importer) populate(ctx context.Context, created *tracking.RunInfo, src tracking.Run, inputDir string) error {
	tags := []tracking.Tag{{Key: SourceRunIDTag, Value: src.Info.RunID}}
	for _, t := range src.Data.Tags {
		if !strings.HasPrefix(t.Key, systemTagPrefix) {
			tags = append(tags, t)
		}
	}
	if err := i.logBatches(ctx, created.RunID, src.Data.Metrics, src.Data.Params, tags); err != nil {
		return err
	}

	dst, ok := LocalPath(created.ArtifactURI)
	if !ok {
		slog.Debug("artifacts not copied to remote store", "run_id", created.RunID, "artifact_uri", created.ArtifactURI)
		return nil
	}
	if _, err := copyArtifacts(filepath.Join(inputDir, ArtifactsDir), dst); err != nil {
		return models.WrapExportError(models.ErrArtifactCopy, err, "run %s", created.RunID)
	}
	return nil
}

// logBatches sends metrics, params and tags in as many requests as the
// per-request limits require. Params and tags go first; metrics fill the
// remaining room.
func (i *Importer) logBatches(ctx context.Context, runID string, metrics []tracking.Metric, params []tracking.Param, tags []tracking.Tag) error {
	for len(metrics) > 0 || len(params) > 0 || len(tags) > 0 {
		var m []tracking.Metric
		var p []tracking.Param
		var t []tracking.Tag
		p, params = split(params, maxBatchParams)
		t, tags = split(tags, maxBatchTags)
		m, metrics = split(metrics, maxBatchEntities-len(p)-len(t))
		if err := i.client.LogBatch(ctx, runID, m, p, t); err != nil {
			return fmt.Errorf("logging batch for run %s: %w", runID, err)
		}
	}
	return nil
}

func split[T any](s []T, n int) ([]T, []T) {
	if len(s) <= n {
		return s, nil
	}
	return s[:n], s[n:]
}
