package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

func staticLister(ids ...string) (ListFunc, *int) {
	calls := 0
	return func(ctx context.Context) ([]string, error) {
		calls++
		return ids, nil
	}, &calls
}

func TestResolve(t *testing.T) {
	listing := []string{"exp_a", "exp_b", "other"}

	tests := []struct {
		name        string
		sel         Selector
		want        []string
		wantListed  bool
		wantListing int
	}{
		{"all", All(), []string{"exp_a", "exp_b", "other"}, true, 1},
		{"wildcard", WildcardPrefix("exp_*"), []string{"exp_a", "exp_b"}, true, 1},
		{"wildcard without star", WildcardPrefix("oth"), []string{"other"}, true, 1},
		{"wildcard no match", WildcardPrefix("zzz*"), []string{}, true, 1},
		{"comma list ignores listing", CommaList("a,b,c"), []string{"a", "b", "c"}, false, 0},
		{"comma list trims", CommaList(" a , b,,"), []string{"a", "b"}, false, 0},
		{"explicit", ExplicitList("x", "exp_a"), []string{"x", "exp_a"}, false, 0},
		{"id to sub items sorted", IDToSubItems(map[string][]string{"2": {"r3"}, "1": {"r1", "r2"}}), []string{"1", "2"}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, calls := staticLister(listing...)
			got, err := Resolve(context.Background(), tt.sel, list)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !reflect.DeepEqual(got.IDs(), tt.want) {
				t.Errorf("Resolve(%s) = %v, want %v", tt.sel, got.IDs(), tt.want)
			}
			if got.FromListing != tt.wantListed {
				t.Errorf("FromListing = %v, want %v", got.FromListing, tt.wantListed)
			}
			if *calls != tt.wantListing {
				t.Errorf("listing called %d times, want %d", *calls, tt.wantListing)
			}
		})
	}
}

func TestResolveCarriesSubItems(t *testing.T) {
	sel := IDToSubItems(map[string][]string{"7": {"r1", "r2"}, "3": nil})
	got, err := Resolve(context.Background(), sel, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Unit{{ID: "3"}, {ID: "7", SubItems: []string{"r1", "r2"}}}
	if !reflect.DeepEqual(got.Units, want) {
		t.Errorf("Resolve units = %+v, want %+v", got.Units, want)
	}
}

func TestResolveListingError(t *testing.T) {
	boom := errors.New("server down")
	list := func(ctx context.Context) ([]string, error) { return nil, boom }

	for _, sel := range []Selector{All(), WildcardPrefix("a*")} {
		if _, err := Resolve(context.Background(), sel, list); !errors.Is(err, boom) {
			t.Errorf("Resolve(%s) error = %v, want wrapped %v", sel, err, boom)
		}
	}
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.txt")
	content := "sklearn_wine\n\n# skipped\n  sklearn_iris  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing selector file: %v", err)
	}

	got, err := Resolve(context.Background(), ParseSelector(path), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := []string{"sklearn_wine", "sklearn_iris"}; !reflect.DeepEqual(got.IDs(), want) {
		t.Errorf("Resolve(file) = %v, want %v", got.IDs(), want)
	}

	_, err = Resolve(context.Background(), File("/nonexistent/list.txt"), nil)
	var exportErr *models.ExportError
	if !errors.As(err, &exportErr) || exportErr.Type != models.ErrSelectorInvalid {
		t.Errorf("expected selector_invalid for missing selector file, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
		value string
	}{
		{"all", KindAll, ""},
		{"exp_*", KindWildcardPrefix, "exp_"},
		{"*", KindWildcardPrefix, ""},
		{"models.txt", KindFile, "models.txt"},
		{"a,b", KindCommaList, "a,b"},
		{"single", KindCommaList, "single"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sel := ParseSelector(tt.input)
			if sel.Kind != tt.kind || sel.Value != tt.value {
				t.Errorf("ParseSelector(%q) = {%s %q}, want {%s %q}", tt.input, sel.Kind, sel.Value, tt.kind, tt.value)
			}
		})
	}
}
