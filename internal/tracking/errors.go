package tracking

import (
	"fmt"
	"net/http"

	"github.com/juju/errors"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// Error codes returned by the tracking server.
const (
	CodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	CodeResourceDoesNotExist  = "RESOURCE_DOES_NOT_EXIST"
	CodeInvalidParameterValue = "INVALID_PARAMETER_VALUE"
	CodePermissionDenied      = "PERMISSION_DENIED"
)

// APIError is a structured failure reported by the tracking server.
//
// It matches the juju/errors kinds, so callers can test
// errors.Is(err, errors.AlreadyExists) or errors.Is(err, errors.NotFound)
// without inspecting error codes.
type APIError struct {
	Method     string `json:"-"`
	Endpoint   string `json:"-"`
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	code := e.ErrorCode
	if code == "" {
		code = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d %s: %s", e.Method, e.Endpoint, e.StatusCode, code, e.Message)
}

// Is maps server error codes onto juju/errors kinds.
func (e *APIError) Is(target error) bool {
	switch target {
	case errors.AlreadyExists:
		return e.ErrorCode == CodeResourceAlreadyExists
	case errors.NotFound:
		return e.ErrorCode == CodeResourceDoesNotExist ||
			(e.ErrorCode == "" && e.StatusCode == http.StatusNotFound)
	case errors.NotValid:
		return e.ErrorCode == CodeInvalidParameterValue
	case errors.Unauthorized:
		return e.ErrorCode == CodePermissionDenied ||
			e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

func (e *APIError) Kind() models.ErrorType {
	return models.ErrRemoteAPI
}
