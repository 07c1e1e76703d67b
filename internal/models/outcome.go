package models

// ExportUnit is one entity submitted to the export worker pool.
type ExportUnit struct {
	ID        string   // experiment ID or name, or model name
	SubItems  []string // optional run ID filter
	OutputDir string   // parent directory for the entity's subdirectory
}

// ExportOutcome is the result of exporting one experiment. OKRuns and
// FailedRuns are both -1 when the experiment export never ran.
type ExportOutcome struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	OKRuns      int        `json:"ok_runs"`
	FailedRuns  int        `json:"failed_runs"`
	DurationSec float64    `json:"duration"`
	Error       *UnitError `json:"error,omitempty"`
}

// NeverRan reports whether the outcome carries the not-run sentinel.
func (o ExportOutcome) NeverRan() bool {
	return o.OKRuns < 0 && o.FailedRuns < 0
}

// ModelOutcome is the result of exporting one registered model.
type ModelOutcome struct {
	Name           string     `json:"name"`
	Dir            string     `json:"dir"`
	OKVersions     int        `json:"ok_versions"`
	FailedVersions int        `json:"failed_versions"`
	DurationSec    float64    `json:"duration"`
	Error          *UnitError `json:"error,omitempty"`
}
