package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
)

func TestRequestTimeout_DeadlineExceeded(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/patients")

	err := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)

	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
	if got := apperr.Status(err); got != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/patients")

	var deadline bool
	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		_, deadline = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deadline {
		t.Error("expected a deadline on the request context")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_HandlerErrorPassesThrough(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/patients")
	want := apperr.New(apperr.ErrNotFound, "patient not found")

	err := RequestTimeout(time.Second)(func(echo.Context) error { return want })(c)
	if !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestRequestTimeout_Disabled(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/patients")

	err := RequestTimeout(0)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_ClientGone(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/patients")
	ctx, cancel := context.WithCancel(context.Background())
	c.SetRequest(c.Request().WithContext(ctx))
	cancel()

	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		return c.Request().Context().Err()
	})(c)
	if errors.Is(err, ErrRequestTimeout) {
		t.Error("a cancelled client is not a timeout")
	}
}
