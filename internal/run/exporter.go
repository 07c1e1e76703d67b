// Package run exports a single run to disk and imports it into another
// tracking server.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

// Info is the info section of run.json.
type Info struct {
	TrackingURI     string `json:"tracking_uri"`
	ArtifactsCopied bool   `json:"artifacts_copied"`
	ArtifactBytes   int64  `json:"artifact_bytes,omitempty"`
}

// File is the full run.json document.
type File = models.Envelope[tracking.Run, Info]

// Getter fetches runs and their metric histories from the source tracking
// server.
type Getter interface {
	GetRun(ctx context.Context, runID string) (*tracking.Run, error)
	GetMetricHistory(ctx context.Context, runID, key string) ([]tracking.Metric, error)
}

// Exporter writes runs into per-run directories.
type Exporter struct {
	client      Getter
	trackingURI string
}

func NewExporter(client Getter, trackingURI string) *Exporter {
	return &Exporter{client: client, trackingURI: trackingURI}
}

// ExportRun writes run.json for runID into dir and copies the run's
// artifacts when they live on the local filesystem.
func (e *Exporter) ExportRun(ctx context.Context, runID, dir string) (*tracking.Run, error) {
	r, err := e.client.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	if err := e.loadMetricHistory(ctx, runID, r); err != nil {
		return nil, err
	}

	info := Info{TrackingURI: e.trackingURI}
	if src, ok := LocalPath(r.Info.ArtifactURI); ok {
		dst := filepath.Join(dir, ArtifactsDir)
		if err := os.RemoveAll(dst); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", dst, err)
		}
		n, err := copyArtifacts(src, dst)
		if err != nil {
			return nil, models.WrapExportError(models.ErrArtifactCopy, err, "run %s", runID)
		}
		info.ArtifactsCopied = true
		info.ArtifactBytes = n
	} else if r.Info.ArtifactURI != "" {
		slog.Debug("artifacts not copied from remote store", "run_id", runID, "artifact_uri", r.Info.ArtifactURI)
	}

	if err := manifest.Write(dir, manifest.RunFile, &File{MLflow: *r, Info: info}); err != nil {
		return nil, err
	}

	slog.Debug("exported run", "run_id", runID, "dir", dir, "artifacts", humanize.Bytes(uint64(info.ArtifactBytes)))
	return r, nil
}

// loadMetricHistory replaces the latest value of each metric with every value
// logged for it.
func (e *Exporter) loadMetricHistory(ctx context.Context, runID string, r *tracking.Run) error {
	if len(r.Data.Metrics) == 0 {
		return nil
	}
	history := make([]tracking.Metric, 0, len(r.Data.Metrics))
	seen := make(map[string]bool, len(r.Data.Metrics))
	for _, m := range r.Data.Metrics {
		if seen[m.Key] {
			continue
		}
		seen[m.Key] = true
		values, err := e.client.GetMetricHistory(ctx, runID, m.Key)
		if err != nil {
			return fmt.Errorf("getting history of metric %q for run %s: %w", m.Key, runID, err)
		}
		history = append(history, values...)
	}
	r.Data.Metrics = history
	return nil
}
