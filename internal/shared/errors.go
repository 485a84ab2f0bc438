package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrForbidden        = fmt.Errorf("forbidden")
	ErrTokenExpired     = fmt.Errorf("access token expired")

	// Persistence errors
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("already exists")

	// External service errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTransformFailed    = fmt.Errorf("transform service error")
	ErrStorage            = fmt.Errorf("storage error")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrFileTooLarge    = fmt.Errorf("file too large")
	ErrUnsupportedType = fmt.Errorf("unsupported audio type")
)

// HTTPError is an error with a client-facing status and message.
//
// Log holds the internal detail written to the server log; it is never sent to clients.
type HTTPError struct {
	Status  int
	Message string
	Log     string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError builds an [HTTPError]. err may be nil.
func NewHTTPError(status int, message string, err error) *HTTPError {
	detail := "Unknown error"
	if err != nil {
		detail = err.Error()
	}
	return &HTTPError{
		Status:  status,
		Message: message,
		Log:     fmt.Sprintf("%s - %s", message, detail),
		Err:     err,
	}
}

// AsHTTPError converts any error into an [HTTPError], mapping sentinel errors to statuses.
func AsHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingArgument), errors.Is(err, ErrInvalidArgument):
		return NewHTTPError(http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusBadRequest, "Invalid credentials", err)
	case errors.Is(err, ErrUnsupportedType):
		return NewHTTPError(http.StatusUnsupportedMediaType, "Unsupported audio type", err)
	case errors.Is(err, ErrFileTooLarge):
		return NewHTTPError(http.StatusRequestEntityTooLarge, "File too large", err)
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrTokenExpired):
		return NewHTTPError(http.StatusUnauthorized, "Not authenticated", err)
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, "Not found", err)
	case errors.Is(err, ErrConflict):
		return NewHTTPError(http.StatusConflict, "Already exists", err)
	case errors.Is(err, ErrTransformFailed), errors.Is(err, ErrServiceUnavailable):
		return NewHTTPError(http.StatusBadGateway, "Audio processing failed", err)
	default:
		return NewHTTPError(http.StatusInternalServerError, "Internal Server Error", err)
	}
}
