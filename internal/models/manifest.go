package models

// Envelope is the on-disk layout shared by every export file: a payload
// describing exported objects and an info section describing the export.
type Envelope[P any, I any] struct {
	MLflow P `json:"mlflow"`
	Info   I `json:"info"`
}

// Manifest is the bulk export file (experiments.json, models.json).
type Manifest = Envelope[Payload, Info]

// Summary is the top-level manifest.json written by export-models and export-all.
type Summary = Envelope[struct{}, SummaryInfo]

// MergeNote replaces the info note when two manifests are merged.
const MergeNote = "Merged by export_all from export_models and export_experiments"

// Payload lists the per-entity detail records of a bulk export.
type Payload struct {
	Experiments []ExportOutcome `json:"experiments,omitempty"`
	Models      []ModelOutcome  `json:"models,omitempty"`
}

// Info describes how a bulk export was invoked and how it went.
type Info struct {
	ExperimentNames []string       `json:"experiment_names,omitempty"`
	ModelNames      []string       `json:"model_names,omitempty"`
	FailedModels    []string       `json:"failed_models,omitempty"`
	Options         map[string]any `json:"options"`
	Status          Status         `json:"status"`
	Note            string         `json:"note,omitempty"`
}

// Status holds the aggregate counters of a bulk export. All counters and the
// duration are additive when manifests are merged.
type Status struct {
	DurationSec       float64 `json:"duration"`
	Experiments       int     `json:"experiments"`
	FailedExperiments int     `json:"failed_experiments"`
	TotalRuns         int     `json:"total_runs"`
	OKRuns            int     `json:"ok_runs"`
	FailedRuns        int     `json:"failed_runs"`
	Models            int     `json:"models,omitempty"`
	OKModels          int     `json:"ok_models,omitempty"`
	FailedModels      int     `json:"failed_models,omitempty"`
}

// SummaryInfo is the info section of manifest.json.
type SummaryInfo struct {
	Options map[string]any `json:"options"`
	Status  SummaryStatus  `json:"status"`
}

type SummaryStatus struct {
	DurationSec float64 `json:"duration"`
	Models      *Info   `json:"models,omitempty"`
	Experiments *Info   `json:"experiments,omitempty"`
}
