package models

// RegisteredModelRecord is the exported form of a registered model.
type RegisteredModelRecord struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Tags        map[string]string    `json:"tags,omitempty"`
	Versions    []ModelVersionRecord `json:"versions"`
}

// ModelVersionRecord is the exported form of one model version.
type ModelVersionRecord struct {
	Version        string `json:"version"`
	RunID          string `json:"run_id"`
	Source         string `json:"source"`
	CurrentStage   string `json:"current_stage"`
	RunArtifactURI string `json:"_run_artifact_uri"`
}

// ModelPayload is the payload section of model.json.
type ModelPayload struct {
	RegisteredModel RegisteredModelRecord `json:"registered_model"`
}

// ModelInfo is the info section of model.json.
type ModelInfo struct {
	NumVersions       int      `json:"num_versions"`
	NumFailedVersions int      `json:"num_failed_versions"`
	FailedVersions    []string `json:"failed_versions,omitempty"`
	Stages            []string `json:"stages,omitempty"`
	LatestOnly        bool     `json:"export_latest_versions"`
}

// ModelFile is the full model.json document.
type ModelFile = Envelope[ModelPayload, ModelInfo]

// ImportedRun identifies a run created at the destination.
type ImportedRun struct {
	RunID       string
	ArtifactURI string
}
