package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/audit"
	"github.com/phc/phc/internal/platform/auth"
)

func newTestContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequestID_GeneratesNew(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/")

	var seen string
	err := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" {
		t.Error("expected request_id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected response header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, "trace-42")

	_ = RequestID()(func(c echo.Context) error { return nil })(c)
	if c.Get("request_id") != "trace-42" {
		t.Errorf("expected trace-42, got %v", c.Get("request_id"))
	}
	if rec.Header().Get(RequestIDHeader) != "trace-42" {
		t.Errorf("expected trace-42 in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, strings.Repeat("x", 500))

	_ = RequestID()(func(c echo.Context) error { return nil })(c)
	if rid, _ := c.Get("request_id").(string); len(rid) > 128 {
		t.Error("oversized request id must be replaced")
	}
}

func TestLogger_IncludesPartition(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestContext(http.MethodGet, "/api/patients")
	c.Set("request_id", "req-1")

	err := Logger(zerolog.New(&buf))(func(c echo.Context) error {
		c.Set("partition", "phc_demo")
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := buf.String()
	for _, want := range []string{`"partition":"phc_demo"`, `"request_id":"req-1"`, `"status":200`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/panic")
	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/ok")
	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/patients")
	_ = SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("header %s: got %q, want %q", header, got, want)
		}
	}
}

type recordedEntries struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (r *recordedEntries) Record(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

func withActor(c echo.Context, userID, role string) {
	ctx := auth.WithClaims(c.Request().Context(), &auth.Claims{Role: role})
	ctx = context.WithValue(ctx, auth.UserIDKey, userID)
	c.SetRequest(c.Request().WithContext(ctx))
}

func TestAudit_RecordsSuccessfulWrite(t *testing.T) {
	rec := &recordedEntries{}
	c, _ := newTestContext(http.MethodPost, "/api/opd/consult/v-1")
	c.SetPath("/api/opd/consult/:id")
	c.SetParamNames("id")
	c.SetParamValues("v-1")
	c.Set("request_id", "req-7")
	withActor(c, "u-1", auth.RoleDoctor)

	err := Audit(rec, zerolog.Nop())(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(rec.entries))
	}
	got := rec.entries[0]
	if got.Action != "POST /api/opd/consult/:id" {
		t.Errorf("unexpected action %q", got.Action)
	}
	if got.TargetID != "v-1" || got.ActorID != "u-1" || got.Role != auth.RoleDoctor {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Details["request_id"] != "req-7" {
		t.Errorf("expected request id in details, got %v", got.Details)
	}
}

func TestAudit_TargetFromHandler(t *testing.T) {
	rec := &recordedEntries{}
	c, _ := newTestContext(http.MethodPost, "/api/patients")
	c.SetPath("/api/patients")

	_ = Audit(rec, zerolog.Nop())(func(c echo.Context) error {
		c.Set(AuditTargetKey, "p-1")
		return c.NoContent(http.StatusCreated)
	})(c)
	if len(rec.entries) != 1 || rec.entries[0].TargetID != "p-1" {
		t.Errorf("expected target p-1, got %+v", rec.entries)
	}
}

func TestAudit_SkipsReadsAndFailures(t *testing.T) {
	rec := &recordedEntries{}
	mw := Audit(rec, zerolog.Nop())

	c, _ := newTestContext(http.MethodGet, "/api/patients")
	_ = mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	c, _ = newTestContext(http.MethodPost, "/api/beds/admit")
	err := mw(func(c echo.Context) error { return apperr.New(apperr.ErrConflict, "bed occupied") })(c)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("handler error must pass through, got %v", err)
	}

	c, _ = newTestContext(http.MethodPost, "/api/patients")
	_ = mw(func(c echo.Context) error { return c.NoContent(http.StatusBadRequest) })(c)

	if len(rec.entries) != 0 {
		t.Errorf("expected no entries, got %d", len(rec.entries))
	}
}

func TestAudit_RecorderErrorDoesNotFailRequest(t *testing.T) {
	rec := &recordedEntries{err: errors.New("db down")}
	c, _ := newTestContext(http.MethodPost, "/api/patients")
	err := Audit(rec, zerolog.Nop())(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})(c)
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

type observedRequest struct {
	method, route string
	status        int
}

type requestLog struct{ got []observedRequest }

func (r *requestLog) ObserveRequest(method, route string, status int, _ time.Duration) {
	r.got = append(r.got, observedRequest{method, route, status})
}

func TestMetrics_ObservesRouteAndStatus(t *testing.T) {
	obs := &requestLog{}
	mw := Metrics(obs)

	c, _ := newTestContext(http.MethodGet, "/api/patients/123")
	c.SetPath("/api/patients/:id")
	_ = mw(func(c echo.Context) error { return apperr.New(apperr.ErrNotFound, "patient not found") })(c)

	c, _ = newTestContext(http.MethodPost, "/api/patients")
	c.SetPath("/api/patients")
	_ = mw(func(c echo.Context) error { return c.NoContent(http.StatusCreated) })(c)

	c, _ = newTestContext(http.MethodGet, "/nowhere")
	_ = mw(func(c echo.Context) error { return echo.ErrNotFound })(c)

	want := []observedRequest{
		{http.MethodGet, "/api/patients/:id", http.StatusNotFound},
		{http.MethodPost, "/api/patients", http.StatusCreated},
		{http.MethodGet, "unmatched", http.StatusNotFound},
	}
	if len(obs.got) != len(want) {
		t.Fatalf("expected %d observations, got %d", len(want), len(obs.got))
	}
	for i := range want {
		if obs.got[i] != want[i] {
			t.Errorf("observation %d: got %+v, want %+v", i, obs.got[i], want[i])
		}
	}
}
