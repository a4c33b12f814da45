package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
)

// ErrRequestTimeout is returned when a request outlives its deadline.
var ErrRequestTimeout = apperr.New(apperr.ErrUnavailable, "request timed out, please retry")

// RequestTimeout puts a deadline on the request context. Database calls
// made through that context are cancelled when it passes, and the caller
// gets a 503 with Retry-After instead of whatever error the cancellation
// produced. A non-positive timeout disables the deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				c.Response().Header().Set("Retry-After", "1")
				return ErrRequestTimeout
			}
			return err
		}
	}
}
