package manifest

import (
	"maps"
	"math"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// Merge combines a manifest already on disk with one produced by a later
// export into the same directory. It does not modify its inputs.
//
// Payload lists are concatenated, existing first. In the info section, list
// fields are appended, status counters and durations are summed, options are
// merged with incoming keys winning, and the note is replaced by MergeNote.
// Merging the same manifest twice double counts; callers merge once.
func Merge(existing, incoming *models.Manifest) *models.Manifest {
	switch {
	case existing == nil && incoming == nil:
		return &models.Manifest{}
	case existing == nil:
		return clone(incoming)
	case incoming == nil:
		return clone(existing)
	}

	return &models.Manifest{
		MLflow: models.Payload{
			Experiments: concat(existing.MLflow.Experiments, incoming.MLflow.Experiments),
			Models:      concat(existing.MLflow.Models, incoming.MLflow.Models),
		},
		Info: MergeInfo(existing.Info, incoming.Info),
	}
}

// MergeInfo merges two info sections. See Merge.
func MergeInfo(existing, incoming models.Info) models.Info {
	info := models.Info{
		ExperimentNames: concat(existing.ExperimentNames, incoming.ExperimentNames),
		ModelNames:      concat(existing.ModelNames, incoming.ModelNames),
		FailedModels:    concat(existing.FailedModels, incoming.FailedModels),
		Options:         mergeOptions(existing.Options, incoming.Options),
		Status:          addStatus(existing.Status, incoming.Status),
		Note:            incoming.Note,
	}
	if info.Note == "" {
		info.Note = existing.Note
	}
	if contributed(existing) && contributed(incoming) {
		info.Note = models.MergeNote
	}
	return info
}

func addStatus(a, b models.Status) models.Status {
	return models.Status{
		DurationSec:       round1(a.DurationSec + b.DurationSec),
		Experiments:       a.Experiments + b.Experiments,
		FailedExperiments: a.FailedExperiments + b.FailedExperiments,
		TotalRuns:         a.TotalRuns + b.TotalRuns,
		OKRuns:            a.OKRuns + b.OKRuns,
		FailedRuns:        a.FailedRuns + b.FailedRuns,
		Models:            a.Models + b.Models,
		OKModels:          a.OKModels + b.OKModels,
		FailedModels:      a.FailedModels + b.FailedModels,
	}
}

func contributed(info models.Info) bool {
	return len(info.Options) > 0 || info.Status != (models.Status{}) ||
		len(info.ExperimentNames) > 0 || len(info.ModelNames) > 0
}

func mergeOptions(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}

func concat[T any](a, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func clone(m *models.Manifest) *models.Manifest {
	return &models.Manifest{
		MLflow: models.Payload{
			Experiments: concat(m.MLflow.Experiments, nil),
			Models:      concat(m.MLflow.Models, nil),
		},
		Info: models.Info{
			ExperimentNames: concat(m.Info.ExperimentNames, nil),
			ModelNames:      concat(m.Info.ModelNames, nil),
			FailedModels:    concat(m.Info.FailedModels, nil),
			Options:         mergeOptions(m.Info.Options, nil),
			Status:          m.Info.Status,
			Note:            m.Info.Note,
		},
	}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
