package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/run"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultReadyTimeout = 5 * time.Minute
)

var errNotReady = errors.New("model version not ready")

// ImportClient is the part of the tracking API used to import models.
type ImportClient interface {
	CreateRegisteredModel(ctx context.Context, name string, tags map[string]string, description string) error
	DeleteRegisteredModel(ctx context.Context, name string) error
	GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error)
	CreateExperiment(ctx context.Context, name string, tags map[string]string) (string, error)
	CreateModelVersion(ctx context.Context, name, source, runID string) (*tracking.ModelVersion, error)
	GetModelVersion(ctx context.Context, name, version string) (*tracking.ModelVersion, error)
	TransitionModelVersionStage(ctx context.Context, name, version, stage string) (*tracking.ModelVersion, error)
}

// RunImporter recreates an exported run at the destination.
type RunImporter interface {
	ImportRun(ctx context.Context, experimentID, inputDir string) (models.ImportedRun, error)
}

// ImportOptions describe one import-model invocation. ModelName defaults to
// the exported model's name.
type ImportOptions struct {
	InputDir       string
	ModelName      string
	ExperimentName string
	DeleteExisting bool
}

// Importer imports an exported registered model, one version at a time.
type Importer struct {
	client        ImportClient
	runs          RunImporter
	clock         clock.Clock
	pollInterval  time.Duration
	readyTimeout  time.Duration
	noneStage     string
	remoteSchemes []string
}

// NewImporter creates an Importer. A nil clk uses the wall clock.
func NewImporter(client ImportClient, runs RunImporter, cfg models.ImportConfig, clk clock.Clock) *Importer {
	if clk == nil {
		clk = clock.WallClock
	}
	i := &Importer{
		client:        client,
		runs:          runs,
		clock:         clk,
		pollInterval:  seconds(cfg.PollIntervalSec, defaultPollInterval),
		readyTimeout:  seconds(cfg.ReadyTimeoutSec, defaultReadyTimeout),
		noneStage:     cfg.NoneStage,
		remoteSchemes: make([]string, 0, len(cfg.RemoteSchemes)),
	}
	for _, s := range cfg.RemoteSchemes {
		i.remoteSchemes = append(i.remoteSchemes, strings.ToLower(s))
	}
	return i
}

// ImportModel creates the registered model and imports each exported version
// in order. A version that fails is logged and recorded in the report, and
// the remaining versions are still imported. Only failures affecting the
// whole model are returned as errors.
func (i *Importer) ImportModel(ctx context.Context, opts ImportOptions) (*models.ImportReport, error) {
	start := time.Now()

	f, err := manifest.Read[models.ModelPayload, models.ModelInfo](filepath.Join(opts.InputDir, manifest.ModelFile))
	if err != nil {
		return nil, err
	}
	src := f.MLflow.RegisteredModel
	if opts.ExperimentName == "" {
		return nil, fmt.Errorf("destination experiment name is required")
	}

	name := opts.ModelName
	if name == "" {
		name = src.Name
	}
	slog.Info("importing model", "name", name, "source_name", src.Name, "versions", len(src.Versions), "input_dir", opts.InputDir)

	if opts.DeleteExisting {
		if err := i.client.DeleteRegisteredModel(ctx, name); err != nil && !errors.Is(err, errors.NotFound) {
			return nil, fmt.Errorf("deleting model %q: %w", name, err)
		}
	}

	report := &models.ImportReport{ModelName: name}
	err = i.client.CreateRegisteredModel(ctx, name, src.Tags, src.Description)
	switch {
	case err == nil:
		report.Created = true
	case errors.Is(err, errors.AlreadyExists):
		slog.Info("registered model already exists", "name", name)
	default:
		return nil, fmt.Errorf("creating model %q: %w", name, err)
	}

	report.ExperimentID, err = i.experimentID(ctx, opts.ExperimentName)
	if err != nil {
		return nil, err
	}

	for _, v := range src.Versions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		vr, err := i.importVersion(ctx, name, report.ExperimentID, opts.InputDir, v)
		report.Versions = append(report.Versions, vr)
		if errors.Is(err, errors.Unauthorized) {
			return report, fmt.Errorf("importing model %q: %w", name, err)
		}
	}

	report.DurationSec = math.Round(time.Since(start).Seconds()*10) / 10
	slog.Info("imported model", "name", name, "versions", len(report.Versions), "failed", report.Failed(), "duration", report.DurationSec)
	return report, nil
}

func (i *Importer) experimentID(ctx context.Context, name string) (string, error) {
	exp, err := i.client.GetExperimentByName(ctx, name)
	if err == nil {
		return exp.ExperimentID, nil
	}
	if !errors.Is(err, errors.NotFound) {
		return "", fmt.Errorf("getting experiment %q: %w", name, err)
	}

	id, err := i.client.CreateExperiment(ctx, name, nil)
	if errors.Is(err, errors.AlreadyExists) {
		// Created concurrently by someone else.
		exp, err = i.client.GetExperimentByName(ctx, name)
		if err != nil {
			return "", fmt.Errorf("getting experiment %q: %w", name, err)
		}
		return exp.ExperimentID, nil
	}
	if err != nil {
		return "", fmt.Errorf("creating experiment %q: %w", name, err)
	}
	slog.Info("created experiment", "name", name, "id", id)
	return id, nil
}

func (i *Importer) importVersion(ctx context.Context, name, experimentID, inputDir string, v models.ModelVersionRecord) (models.VersionReport, error) {
	vr := models.VersionReport{SourceVersion: v.Version, SourceRunID: v.RunID}
	err := i.importVersionSteps(ctx, name, experimentID, inputDir, v, &vr)
	if err != nil {
		slog.Error("model version import failed", "model", name, "source_version", v.Version, "run_id", v.RunID, "error", err)
		vr.Error = models.ToUnitError(err, models.ErrRunImportFailed)
	}
	return vr, err
}

func (i *Importer) importVersionSteps(ctx context.Context, name, experimentID, inputDir string, v models.ModelVersionRecord, vr *models.VersionReport) error {
	modelPath, err := ExtractModelPath(v.Source, v.RunID)
	if err != nil {
		return err
	}

	imported, err := i.runs.ImportRun(ctx, experimentID, filepath.Join(inputDir, v.RunID))
	if err != nil {
		return err
	}
	vr.RunID = imported.RunID

	source := JoinArtifactPath(imported.ArtifactURI, modelPath)
	if err := i.checkSource(source); err != nil {
		return err
	}

	mv, err := i.client.CreateModelVersion(ctx, name, source, imported.RunID)
	if err != nil {
		return models.WrapExportError(models.ErrModelVersionCreateFailed, err, "model %q source %s", name, source)
	}
	vr.Version = mv.Version
	slog.Debug("created model version", "model", name, "version", mv.Version, "source", source)

	if err := i.waitUntilReady(ctx, name, mv.Version); err != nil {
		return err
	}

	stage, err := i.transition(ctx, name, mv.Version, v.CurrentStage)
	vr.Stage = stage
	return err
}

// checkSource verifies that a version source exists before it is registered.
// Sources in a remote artifact store are not checked.
func (i *Importer) checkSource(source string) error {
	if s := scheme(source); s != "" && slices.Contains(i.remoteSchemes, s) {
		return nil
	}
	path, ok := run.LocalPath(source)
	if !ok {
		path = source
	}
	if _, err := os.Stat(path); err != nil {
		return models.WrapExportError(models.ErrArtifactPathMissing, err, "model version source %s does not exist", source)
	}
	return nil
}

// waitUntilReady polls a new model version until the server reports it
// ready, it fails registration, or the ready timeout passes.
func (i *Importer) waitUntilReady(ctx context.Context, name, version string) error {
	var status string
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			mv, err := i.client.GetModelVersion(ctx, name, version)
			if err != nil {
				return err
			}
			status = mv.Status
			switch mv.Status {
			case tracking.StatusReady:
				return nil
			case tracking.StatusFailedRegistration:
				return &VersionFailedError{Name: name, Version: version, Message: mv.StatusMessage}
			}
			return errNotReady
		},
		IsFatalError: func(err error) bool {
			var failed *VersionFailedError
			return errors.As(err, &failed)
		},
		NotifyFunc: func(err error, attempt int) {
			slog.Debug("waiting for model version", "model", name, "version", version, "attempt", attempt, "status", status)
		},
		Attempts:    -1,
		Delay:       i.pollInterval,
		MaxDuration: i.readyTimeout,
		Clock:       i.clock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsDurationExceeded(err):
		return &VersionTimeoutError{Name: name, Version: version, Status: status, Timeout: i.readyTimeout}
	case retry.IsRetryStopped(err):
		return ctx.Err()
	}
	return err
}

// transition moves a version into the exported stage. The configured unset
// stage is skipped; values that only look unset are skipped with a warning.
func (i *Importer) transition(ctx context.Context, name, version, stage string) (string, error) {
	switch {
	case stage == i.noneStage:
		return "", nil
	case stage == "" || strings.EqualFold(stage, i.noneStage):
		slog.Warn("skipping stage transition for unrecognized unset stage", "model", name, "version", version, "stage", stage, "none_stage", i.noneStage)
		return "", nil
	}

	if _, err := i.client.TransitionModelVersionStage(ctx, name, version, stage); err != nil {
		return "", models.WrapExportError(models.ErrStageTransitionFailed, err, "model %q version %s to %s", name, version, stage)
	}
	return stage, nil
}

// ExtractModelPath returns the part of a version source below its run's
// artifact root: the suffix after the run ID with a leading "artifacts/"
// removed.
func ExtractModelPath(source, runID string) (string, error) {
	idx := strings.Index(source, runID)
	if runID == "" || idx < 0 {
		return "", models.NewExportError(models.ErrArtifactPathMissing, "source %q does not contain run ID %q", source, runID)
	}
	rest := strings.TrimPrefix(source[idx+len(runID):], "/")
	if rest == "artifacts" {
		return "", nil
	}
	return strings.TrimPrefix(rest, "artifacts/"), nil
}

// JoinArtifactPath appends a relative model path to an artifact root. URI
// roots are joined with forward slashes.
func JoinArtifactPath(root, rel string) string {
	if rel == "" {
		return root
	}
	if scheme(root) == "" {
		return filepath.Join(root, rel)
	}
	root = strings.TrimRight(strings.ReplaceAll(root, `\`, "/"), "/")
	return root + "/" + strings.TrimLeft(strings.ReplaceAll(rel, `\`, "/"), "/")
}

// scheme returns the lower-cased URI scheme of s, or "" for a plain path.
// Single letter schemes are treated as drive letters.
func scheme(s string) string {
	idx := strings.Index(s, ":")
	if idx < 2 {
		return ""
	}
	for _, r := range s[:idx] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
		default:
			return ""
		}
	}
	return strings.ToLower(s[:idx])
}

func seconds(sec float64, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec * float64(time.Second))
}
