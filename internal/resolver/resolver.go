package resolver

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// ListFunc lists the identifiers of every entity of one kind on the server.
type ListFunc func(ctx context.Context) ([]string, error)

// Resolve turns a selector into an ordered set of units. Entities are never
// probed for existence here; a missing entity surfaces as a failure when it is
// exported. The listing is called at most once, and only for the All and
// WildcardPrefix kinds.
func Resolve(ctx context.Context, sel Selector, list ListFunc) (ResolvedSet, error) {
	switch sel.Kind {
	case KindAll:
		ids, err := list(ctx)
		if err != nil {
			return ResolvedSet{}, fmt.Errorf("listing entities: %w", err)
		}
		slog.Debug("resolved selector from listing", "selector", sel.String(), "count", len(ids))
		return ResolvedSet{Units: units(ids), FromListing: true}, nil

	case KindWildcardPrefix:
		ids, err := list(ctx)
		if err != nil {
			return ResolvedSet{}, fmt.Errorf("listing entities: %w", err)
		}
		var matched []string
		for _, id := range ids {
			if strings.HasPrefix(id, sel.Value) {
				matched = append(matched, id)
			}
		}
		slog.Debug("resolved wildcard selector", "prefix", sel.Value, "listed", len(ids), "matched", len(matched))
		return ResolvedSet{Units: units(matched), FromListing: true}, nil

	case KindCommaList:
		var ids []string
		for _, part := range strings.Split(sel.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
		return ResolvedSet{Units: units(ids)}, nil

	case KindExplicitList:
		return ResolvedSet{Units: units(sel.List)}, nil

	case KindIDToSubItems:
		keys := sortedKeys(sel.SubItems)
		out := make([]Unit, len(keys))
		for i, k := range keys {
			out[i] = Unit{ID: k, SubItems: sel.SubItems[k]}
		}
		return ResolvedSet{Units: out}, nil

	case KindFile:
		ids, err := LoadFromPath(sel.Value)
		if err != nil {
			return ResolvedSet{}, err
		}
		return ResolvedSet{Units: units(ids)}, nil

	default:
		return ResolvedSet{}, models.NewExportError(models.ErrSelectorInvalid, "unsupported selector kind %s", sel.Kind)
	}
}

// LoadFromPath reads identifiers from a text file, one per line. Blank lines
// and lines starting with '#' are skipped.
func LoadFromPath(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.WrapExportError(models.ErrSelectorInvalid, err, "reading selector file")
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, models.WrapExportError(models.ErrSelectorInvalid, err, "reading selector file")
	}
	return ids, nil
}

func units(ids []string) []Unit {
	out := make([]Unit, len(ids))
	for i, id := range ids {
		out[i] = Unit{ID: id}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
