package accounts

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// ResultStatusSuccess is the status of a successful Result
	ResultStatusSuccess = "success"
	// ResultStatusError is the status of an unclassified failure
	ResultStatusError = "error"
)

// Result is the uniform payload returned to transports for operations that
// do not return a profile, and for every failure.
type Result struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Success returns the generic success result
func Success() Result {
	return Result{Status: ResultStatusSuccess}
}

// ResultFromError maps err to an HTTP status code and a Result. Errors that
// are not classified become a 500 with a generic message.
func ResultFromError(err error) (int, Result) {
	if err == nil {
		return http.StatusOK, Success()
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError, Result{
			Status:  ResultStatusError,
			Message: "an unexpected error occurred",
		}
	}

	switch {
	case IsValidationFailed(err):
		return http.StatusBadRequest, Result{
			Status:  TextCodeValidationFailed,
			Message: richErr.Message,
			Errors:  FieldErrors(err),
		}
	case richErr.TextCode == TextCodeRegistrationDisabled:
		return http.StatusForbidden, Result{
			Status:  TextCodeRegistrationDisabled,
			Message: richErr.Message,
		}
	case IsAuthenticationFailed(err):
		return http.StatusForbidden, Result{
			Status:  TextCodeAuthenticationFailed,
			Message: richErr.Message,
		}
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest, Result{
			Status:  TextCodeValidationFailed,
			Message: richErr.Message,
			Errors:  FieldErrors(err),
		}
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return http.StatusForbidden, Result{
			Status:  TextCodeAuthenticationFailed,
			Message: richErr.Message,
		}
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable, Result{
			Status:  ResultStatusError,
			Message: richErr.Message,
		}
	}

	return http.StatusInternalServerError, Result{
		Status:  ResultStatusError,
		Message: "an unexpected error occurred",
	}
}
