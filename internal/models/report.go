package models

// ImportReport records what import-model did for each source version.
type ImportReport struct {
	ModelName    string          `json:"model_name"`
	ExperimentID string          `json:"experiment_id"`
	Created      bool            `json:"created"`
	Versions     []VersionReport `json:"versions"`
	DurationSec  float64         `json:"duration"`
}

// VersionReport is the outcome of importing one model version. Version is
// empty when the destination version was never created.
type VersionReport struct {
	SourceVersion string     `json:"source_version"`
	SourceRunID   string     `json:"source_run_id"`
	RunID         string     `json:"run_id,omitempty"`
	Version       string     `json:"version,omitempty"`
	Stage         string     `json:"stage,omitempty"`
	Error         *UnitError `json:"error,omitempty"`
}

// Failed returns the number of versions that did not import cleanly.
func (r *ImportReport) Failed() int {
	n := 0
	for _, v := range r.Versions {
		if v.Error != nil {
			n++
		}
	}
	return n
}
