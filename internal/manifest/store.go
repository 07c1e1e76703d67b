// Package manifest reads, writes and merges export files.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// File names written by the bulk exporters.
const (
	ExperimentsFile = "experiments.json"
	ModelsFile      = "models.json"
	SummaryFile     = "manifest.json"
	ModelFile       = "model.json"
	ExperimentFile  = "experiment.json"
	RunFile         = "run.json"
)

// Read loads an export file. A file without an "info" or "mlflow" section is
// rejected as malformed.
func Read[P, I any](path string) (*models.Envelope[P, I], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, models.WrapExportError(models.ErrManifestInvalid, err, "parsing %s", path)
	}
	for _, key := range []string{"mlflow", "info"} {
		if _, ok := raw[key]; !ok {
			return nil, models.NewExportError(models.ErrManifestInvalid, "%s: missing %q section", path, key)
		}
	}

	var env models.Envelope[P, I]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, models.WrapExportError(models.ErrManifestInvalid, err, "parsing %s", path)
	}
	return &env, nil
}

// Write stores an export file as indented JSON under dir, creating dir if needed.
func Write[P, I any](dir, name string, env *models.Envelope[P, I]) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	// Write to a temp file first so a reader never sees a partial manifest.
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Exists reports whether dir already holds the named export file.
func Exists(dir, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking %s: %w", name, err)
	}
}
