package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/run"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// newTrackingServer serves one experiment with one run, and one registered
// model whose only version was logged by that run.
func newTrackingServer(t *testing.T) *httptest.Server {
	t.Helper()
	exp := map[string]any{"experiment_id": "1", "name": "exp_a"}
	r1 := map[string]any{
		"info": map[string]any{"run_id": "r1", "experiment_id": "1", "artifact_uri": "s3://bucket/r1/artifacts"},
		"data": map[string]any{
			"params":  []map[string]string{{"key": "alpha", "value": "0.5"}},
			"metrics": []map[string]any{{"key": "loss", "value": 0.1, "step": 1}},
		},
	}
	mv := map[string]any{
		"name":          "churn",
		"version":       "1",
		"run_id":        "r1",
		"source":        "s3://bucket/r1/artifacts/model",
		"current_stage": "Production",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/search", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"experiments": []any{exp}})
	})
	mux.HandleFunc("/api/2.0/mlflow/experiments/get", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"experiment": exp})
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/search", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"runs": []any{r1}})
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/get", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"run": r1})
	})
	mux.HandleFunc("/api/2.0/mlflow/metrics/get-history", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"metrics": []map[string]any{
			{"key": "loss", "value": 0.4, "step": 0},
			{"key": "loss", "value": 0.1, "step": 1},
		}})
	})
	mux.HandleFunc("/api/2.0/mlflow/registered-models/get", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"registered_model": map[string]any{"name": "churn", "latest_versions": []any{mv}}})
	})
	mux.HandleFunc("/api/2.0/mlflow/model-versions/search", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"model_versions": []any{mv}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportExperimentsCommand(t *testing.T) {
	srv := newTrackingServer(t)
	dir := t.TempDir()

	out, err := execute(t, "export-experiments",
		"--tracking-uri", srv.URL,
		"--experiments", "exp_*",
		"--output-dir", dir,
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("export-experiments: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Experiments") {
		t.Errorf("expected summary table, got:\n%s", out)
	}

	m, err := manifest.Read[models.Payload, models.Info](filepath.Join(dir, manifest.ExperimentsFile))
	if err != nil {
		t.Fatalf("reading experiments.json: %v", err)
	}
	if m.Info.Status.Experiments != 1 || m.Info.Status.OKRuns != 1 {
		t.Errorf("unexpected status %+v", m.Info.Status)
	}
	if _, err := os.Stat(filepath.Join(dir, "1", "r1", manifest.RunFile)); err != nil {
		t.Errorf("run not exported: %v", err)
	}
}

func TestExportModelsCommand(t *testing.T) {
	srv := newTrackingServer(t)
	dir := t.TempDir()

	out, err := execute(t, "export-models",
		"--tracking-uri", srv.URL,
		"--models", "churn",
		"--stages", "production",
		"--output-dir", dir,
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("export-models: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Models") {
		t.Errorf("expected models table, got:\n%s", out)
	}

	summary, err := manifest.Read[struct{}, models.SummaryInfo](filepath.Join(dir, manifest.SummaryFile))
	if err != nil {
		t.Fatalf("reading manifest.json: %v", err)
	}
	if summary.Info.Options["models"] != "churn" || summary.Info.Options["stages"] != "production" {
		t.Errorf("unexpected options %v", summary.Info.Options)
	}
	if ms := summary.Info.Status.Models; ms == nil || ms.Status.OKModels != 1 {
		t.Errorf("unexpected models status %+v", ms)
	}

	f, err := manifest.Read[models.ModelPayload, models.ModelInfo](filepath.Join(dir, "models", "churn", manifest.ModelFile))
	if err != nil {
		t.Fatalf("reading model.json: %v", err)
	}
	if vs := f.MLflow.RegisteredModel.Versions; len(vs) != 1 || vs[0].RunID != "r1" {
		t.Errorf("unexpected versions %+v", vs)
	}

	r, err := manifest.Read[tracking.Run, run.Info](filepath.Join(dir, "experiments", "1", "r1", manifest.RunFile))
	if err != nil {
		t.Fatalf("reading exported run: %v", err)
	}
	if len(r.MLflow.Data.Metrics) != 2 {
		t.Errorf("expected metric history in run.json, got %+v", r.MLflow.Data.Metrics)
	}
}

// newImportServer accepts a model import and records the stage transition.
func newImportServer(t *testing.T, stages *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/registered-models/create", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{})
	})
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		reply(w, map[string]any{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "no experiment"})
	})
	mux.HandleFunc("/api/2.0/mlflow/experiments/create", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"experiment_id": "7"})
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/create", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"run": map[string]any{"info": map[string]any{
			"run_id":        "new1",
			"experiment_id": "7",
			"artifact_uri":  "s3://dst/new1/artifacts",
		}}})
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/log-batch", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{})
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/update", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{})
	})
	mux.HandleFunc("/api/2.0/mlflow/model-versions/create", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["source"] != "s3://dst/new1/artifacts/model" || req["run_id"] != "new1" {
			t.Errorf("unexpected create version request %v", req)
		}
		reply(w, map[string]any{"model_version": map[string]any{"name": "churn", "version": "1", "status": "PENDING_REGISTRATION"}})
	})
	mux.HandleFunc("/api/2.0/mlflow/model-versions/get", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"model_version": map[string]any{"name": "churn", "version": "1", "status": "READY"}})
	})
	mux.HandleFunc("/api/2.0/mlflow/model-versions/transition-stage", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		stage, _ := req["stage"].(string)
		*stages = append(*stages, stage)
		reply(w, map[string]any{"model_version": map[string]any{"name": "churn", "version": "1", "current_stage": stage}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeExportedModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f := &models.ModelFile{MLflow: models.ModelPayload{RegisteredModel: models.RegisteredModelRecord{
		Name: "churn",
		Versions: []models.ModelVersionRecord{{
			Version:      "1",
			RunID:        "r1",
			Source:       "s3://bucket/1/r1/artifacts/model",
			CurrentStage: "Production",
		}},
	}}}
	if err := manifest.Write(dir, manifest.ModelFile, f); err != nil {
		t.Fatalf("writing model.json: %v", err)
	}
	src := &run.File{MLflow: tracking.Run{
		Info: tracking.RunInfo{RunID: "r1", Status: tracking.RunStatusFinished},
		Data: tracking.RunData{Params: []tracking.Param{{Key: "alpha", Value: "0.5"}}},
	}}
	if err := manifest.Write(filepath.Join(dir, "r1"), manifest.RunFile, src); err != nil {
		t.Fatalf("writing run.json: %v", err)
	}
	return dir
}

func TestImportModelCommand(t *testing.T) {
	var stages []string
	srv := newImportServer(t, &stages)
	dir := writeExportedModel(t)

	out, err := execute(t, "import-model",
		"--tracking-uri", srv.URL,
		"--input-dir", dir,
		"--experiment-name", "imported",
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("import-model: %v\n%s", err, out)
	}

	for _, want := range []string{"Model: churn (experiment 7)", "Production", "1/1 versions"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(stages) != 1 || stages[0] != "Production" {
		t.Errorf("expected one transition to Production, got %v", stages)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing required flag",
			args: []string{"import-model", "--input-dir", "x"},
			want: "experiment-name",
		},
		{
			name: "bad run start time",
			args: []string{"export-experiments", "--tracking-uri", "http://localhost:1", "--experiments", "all", "--output-dir", "x", "--run-start-time", "yesterday"},
			want: "run-start-time",
		},
		{
			name: "bad tracking uri",
			args: []string{"export-all", "--tracking-uri", "ftp://host", "--output-dir", "x"},
			want: "scheme",
		},
		{
			name: "bad log level",
			args: []string{"export-all", "--log-level", "loud", "--output-dir", "x"},
			want: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestPrintImportReport(t *testing.T) {
	var buf bytes.Buffer
	printImportReport(&buf, &models.ImportReport{
		ModelName:    "churn",
		ExperimentID: "7",
		Versions: []models.VersionReport{
			{SourceVersion: "1", Version: "1", Stage: "Production"},
			{SourceVersion: "2", Error: &models.UnitError{Type: models.ErrModelVersionTimeout}},
		},
	})

	out := buf.String()
	for _, want := range []string{"churn", "Production", string(models.ErrModelVersionTimeout), "1/2 versions"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
