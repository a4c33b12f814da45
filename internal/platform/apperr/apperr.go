// Package apperr defines the error kinds shared by every layer of the
// service and the single place where they are turned into HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrProvisioningFailed  = errors.New("tenant provisioning failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrInternal            = errors.New("internal server error")
	ErrUnavailable         = errors.New("service unavailable")
)

// UserError is an error whose message is safe to show to API callers.
// Kind decides the status code.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Kind }

// New returns a UserError of the given kind.
func New(kind error, message string) error {
	return &UserError{Kind: kind, Message: message}
}

// Status maps an error to its HTTP status code. Errors that match no kind
// are internal.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIdentifier), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing text for err. Internal errors never leak
// their chain; provisioning failures get a fixed message.
func Message(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	switch {
	case errors.Is(err, ErrProvisioningFailed):
		return ErrProvisioningFailed.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid credentials"
	case Status(err) == http.StatusInternalServerError:
		return ErrInternal.Error()
	}
	return err.Error()
}

// HTTPErrorHandler renders handler errors as JSON. echo.HTTPError values pass
// through unchanged. Server-side failures are logged with the full chain.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		var msg interface{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = he.Message
			if he.Internal != nil {
				err = he.Internal
			}
		} else {
			code = Status(err)
			msg = Message(err)
		}

		if code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			partition, _ := c.Get("partition").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("partition", partition).
				Int("status", code).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, map[string]interface{}{"error": msg})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
