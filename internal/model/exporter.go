// Package model exports registered models with the runs backing their
// versions, and imports them into another tracking server.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/juju/errors"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

// ExportClient is the part of the tracking API used to export models.
type ExportClient interface {
	GetRegisteredModel(ctx context.Context, name string) (*tracking.RegisteredModel, error)
	SearchModelVersions(ctx context.Context, filter string) ([]tracking.ModelVersion, error)
}

// RunExporter writes a single run into a directory.
type RunExporter interface {
	ExportRun(ctx context.Context, runID, dir string) (*tracking.Run, error)
}

// ExportOptions select the versions of a model to export. An empty Stages
// exports versions in every stage. LatestOnly exports only the latest
// version per stage.
type ExportOptions struct {
	Stages     []string
	LatestOnly bool
}

type Exporter struct {
	client ExportClient
	runs   RunExporter
}

func NewExporter(client ExportClient, runs RunExporter) *Exporter {
	return &Exporter{client: client, runs: runs}
}

// Versions returns the versions of a model selected by opts, ordered by
// version number.
func (e *Exporter) Versions(ctx context.Context, name string, opts ExportOptions) ([]tracking.ModelVersion, error) {
	var versions []tracking.ModelVersion
	if opts.LatestOnly {
		m, err := e.client.GetRegisteredModel(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("getting model %q: %w", name, err)
		}
		versions = m.LatestVersions
	} else {
		var err error
		versions, err = e.client.SearchModelVersions(ctx, NameFilter(name))
		if err != nil {
			return nil, fmt.Errorf("searching versions of model %q: %w", name, err)
		}
	}

	selected := make([]tracking.ModelVersion, 0, len(versions))
	for _, v := range versions {
		if matchesStage(v.CurrentStage, opts.Stages) {
			selected = append(selected, v)
		}
	}
	slices.SortFunc(selected, func(a, b tracking.ModelVersion) int {
		return compareVersions(a.Version, b.Version)
	})
	return selected, nil
}

// ExportModel writes model.json into dir and exports the run behind each
// selected version into dir/<run_id>. A version whose run fails to export is
// recorded in model.json and counted; it does not fail the model.
func (e *Exporter) ExportModel(ctx context.Context, name, dir string, opts ExportOptions) (*models.ModelOutcome, error) {
	m, err := e.client.GetRegisteredModel(ctx, name)
	if errors.Is(err, errors.NotFound) {
		return nil, models.WrapExportError(models.ErrModelNotFound, err, "model %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting model %q: %w", name, err)
	}
	versions, err := e.Versions(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	record := models.RegisteredModelRecord{
		Name:        m.Name,
		Description: m.Description,
		Tags:        tracking.TagsToMap(m.Tags),
		Versions:    make([]models.ModelVersionRecord, 0, len(versions)),
	}
	var failed []string
	for _, v := range versions {
		r, err := e.runs.ExportRun(ctx, v.RunID, filepath.Join(dir, v.RunID))
		if err != nil {
			slog.Warn("model version export failed", "model", name, "version", v.Version, "run_id", v.RunID, "error", err)
			failed = append(failed, v.Version)
			continue
		}
		record.Versions = append(record.Versions, models.ModelVersionRecord{
			Version:        v.Version,
			RunID:          v.RunID,
			Source:         v.Source,
			CurrentStage:   v.CurrentStage,
			RunArtifactURI: r.Info.ArtifactURI,
		})
	}

	file := &models.ModelFile{
		MLflow: models.ModelPayload{RegisteredModel: record},
		Info: models.ModelInfo{
			NumVersions:       len(versions),
			NumFailedVersions: len(failed),
			FailedVersions:    failed,
			Stages:            opts.Stages,
			LatestOnly:        opts.LatestOnly,
		},
	}
	if err := manifest.Write(dir, manifest.ModelFile, file); err != nil {
		return nil, err
	}

	slog.Info("exported model", "name", name, "versions", len(record.Versions), "failed_versions", len(failed))
	return &models.ModelOutcome{
		Name:           name,
		Dir:            dir,
		OKVersions:     len(record.Versions),
		FailedVersions: len(failed),
	}, nil
}

// NameFilter builds a search filter matching a model by exact name.
func NameFilter(name string) string {
	return fmt.Sprintf("name='%s'", strings.ReplaceAll(name, "'", `\'`))
}

func matchesStage(stage string, stages []string) bool {
	if len(stages) == 0 {
		return true
	}
	for _, s := range stages {
		if strings.EqualFold(s, stage) {
			return true
		}
	}
	return false
}

// compareVersions orders numeric version strings numerically and anything
// else lexically.
func compareVersions(a, b string) int {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
