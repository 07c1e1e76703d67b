package experiment

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/manifest"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/tracking"
)

type fakeClient struct {
	experiments map[string]tracking.Experiment
	runs        map[string][]tracking.Run

	lastFilter string
	lastView   string
}

func notFound(what string) error {
	return &tracking.APIError{StatusCode: 404, ErrorCode: tracking.CodeResourceDoesNotExist, Message: what}
}

func (f *fakeClient) GetExperiment(ctx context.Context, id string) (*tracking.Experiment, error) {
	if exp, ok := f.experiments[id]; ok {
		return &exp, nil
	}
	return nil, notFound(id)
}

func (f *fakeClient) GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error) {
	for _, exp := range f.experiments {
		if exp.Name == name {
			return &exp, nil
		}
	}
	return nil, notFound(name)
}

func (f *fakeClient) SearchRuns(ctx context.Context, id, filter, view string) ([]tracking.Run, error) {
	f.lastFilter, f.lastView = filter, view
	return f.runs[id], nil
}

type fakeRuns struct {
	fail     map[string]bool
	exported []string
}

func (f *fakeRuns) ExportRun(ctx context.Context, runID, dir string) (*tracking.Run, error) {
	if f.fail[runID] {
		return nil, errors.New("export failed")
	}
	f.exported = append(f.exported, runID)
	return &tracking.Run{Info: tracking.RunInfo{RunID: runID}}, nil
}

func runs(ids ...string) []tracking.Run {
	var out []tracking.Run
	for _, id := range ids {
		out = append(out, tracking.Run{Info: tracking.RunInfo{RunID: id}})
	}
	return out
}

func newClient() *fakeClient {
	return &fakeClient{
		experiments: map[string]tracking.Experiment{
			"1": {ExperimentID: "1", Name: "exp_a"},
		},
		runs: map[string][]tracking.Run{"1": runs("r1", "r2", "r3")},
	}
}

func TestLookup(t *testing.T) {
	e := NewExporter(newClient(), &fakeRuns{})

	tests := []struct {
		name    string
		key     string
		wantID  string
		wantErr models.ErrorType
	}{
		{name: "by id", key: "1", wantID: "1"},
		{name: "by name", key: "exp_a", wantID: "1"},
		{name: "missing", key: "exp_z", wantErr: models.ErrExperimentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := e.Lookup(context.Background(), tt.key)
			if tt.wantErr != "" {
				var exportErr *models.ExportError
				if !errors.As(err, &exportErr) || exportErr.Type != tt.wantErr {
					t.Fatalf("expected %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if exp.ExperimentID != tt.wantID {
				t.Errorf("got experiment %s, want %s", exp.ExperimentID, tt.wantID)
			}
		})
	}
}

func TestExportCountsFailedRuns(t *testing.T) {
	client := newClient()
	runExp := &fakeRuns{fail: map[string]bool{"r2": true}}
	dir := t.TempDir()
	exp := client.experiments["1"]

	res, err := NewExporter(client, runExp).Export(context.Background(), &exp, dir, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.OKRuns != 2 || res.FailedRuns != 1 {
		t.Errorf("got ok=%d failed=%d, want 2 and 1", res.OKRuns, res.FailedRuns)
	}
	if client.lastView != tracking.ViewActiveOnly || client.lastFilter != "" {
		t.Errorf("unexpected search view=%q filter=%q", client.lastView, client.lastFilter)
	}

	f, err := manifest.Read[Payload, Info](filepath.Join(dir, manifest.ExperimentFile))
	if err != nil {
		t.Fatalf("reading experiment.json: %v", err)
	}
	if !reflect.DeepEqual(f.MLflow.Runs, []string{"r1", "r3"}) {
		t.Errorf("exported runs = %v", f.MLflow.Runs)
	}
	if f.Info.NumTotalRuns != 3 || !reflect.DeepEqual(f.Info.FailedRuns, []string{"r2"}) {
		t.Errorf("unexpected info %+v", f.Info)
	}
}

func TestExportSearchOptions(t *testing.T) {
	client := newClient()
	exp := client.experiments["1"]

	opts := Options{RunStartTime: 1672617600000, ExportDeletedRuns: true}
	if _, err := NewExporter(client, &fakeRuns{}).Export(context.Background(), &exp, t.TempDir(), opts); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if client.lastView != tracking.ViewAll {
		t.Errorf("expected view ALL, got %q", client.lastView)
	}
	if client.lastFilter != "attributes.start_time >= 1672617600000" {
		t.Errorf("unexpected filter %q", client.lastFilter)
	}
}

func TestExportRunSubset(t *testing.T) {
	client := newClient()
	runExp := &fakeRuns{}
	exp := client.experiments["1"]

	res, err := NewExporter(client, runExp).Export(context.Background(), &exp, t.TempDir(), Options{RunIDs: []string{"r3"}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.OKRuns != 1 || !reflect.DeepEqual(runExp.exported, []string{"r3"}) {
		t.Errorf("expected only r3 exported, got %v", runExp.exported)
	}
	if client.lastView != "" {
		t.Errorf("expected no run search, got view %q", client.lastView)
	}
}
