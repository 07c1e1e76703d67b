package models

import (
	"errors"
	"fmt"
)

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Resolution
	ErrSelectorInvalid    ErrorType = "selector_invalid"
	ErrExperimentNotFound ErrorType = "experiment_not_found"
	ErrModelNotFound      ErrorType = "model_not_found"

	// Remote tracking server
	ErrRemoteAPI ErrorType = "remote_api_error"

	// Export phase
	ErrExportFailed    ErrorType = "export_failed"
	ErrManifestInvalid ErrorType = "manifest_invalid"
	ErrArtifactCopy    ErrorType = "artifact_copy_failed"

	// Import phase
	ErrRunImportFailed          ErrorType = "run_import_failed"
	ErrArtifactPathMissing      ErrorType = "artifact_path_missing"
	ErrModelVersionCreateFailed ErrorType = "model_version_create_failed"
	ErrModelVersionTimeout      ErrorType = "model_version_timeout"
	ErrModelVersionFailed       ErrorType = "model_version_failed"
	ErrStageTransitionFailed    ErrorType = "stage_transition_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// UnitError is the serialized form of a failure recorded against one unit of work.
type UnitError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// ExportError signals a migration precondition violation detected by this
// tool rather than reported by the tracking server.
type ExportError struct {
	Type    ErrorType
	Message string
	Err     error
}

// NewExportError builds an ExportError with a formatted message.
func NewExportError(typ ErrorType, format string, args ...any) *ExportError {
	return &ExportError{Type: typ, Message: fmt.Sprintf(format, args...)}
}

// WrapExportError attaches a type and message to an underlying error.
func WrapExportError(typ ErrorType, err error, format string, args ...any) *ExportError {
	return &ExportError{Type: typ, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

func (e *ExportError) Kind() ErrorType {
	return e.Type
}

// Typed is implemented by errors that carry their own ErrorType.
type Typed interface {
	Kind() ErrorType
}

// ToUnitError converts err into the form recorded in outcomes and reports.
// The outermost typed error in the chain decides the type; fallback is used
// when there is none.
func ToUnitError(err error, fallback ErrorType) *UnitError {
	if err == nil {
		return nil
	}
	typ := fallback
	var typed Typed
	if errors.As(err, &typed) {
		typ = typed.Kind()
	}
	return &UnitError{Type: typ, Message: err.Error()}
}
