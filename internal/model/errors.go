package model

import (
	"fmt"
	"time"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// VersionTimeoutError is returned when a model version is still not ready
// after the configured wait.
type VersionTimeoutError struct {
	Name    string
	Version string
	Status  string
	Timeout time.Duration
}

func (e *VersionTimeoutError) Error() string {
	return fmt.Sprintf("model %q version %s not ready after %s (status %s)", e.Name, e.Version, e.Timeout, e.Status)
}

func (e *VersionTimeoutError) Kind() models.ErrorType {
	return models.ErrModelVersionTimeout
}

// VersionFailedError is returned when the server reports that a model version
// failed to register.
type VersionFailedError struct {
	Name    string
	Version string
	Message string
}

func (e *VersionFailedError) Error() string {
	return fmt.Sprintf("model %q version %s failed registration: %s", e.Name, e.Version, e.Message)
}

func (e *VersionFailedError) Kind() models.ErrorType {
	return models.ErrModelVersionFailed
}
