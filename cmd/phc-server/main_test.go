package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phc/phc/internal/config"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/events"
	"github.com/phc/phc/internal/platform/telemetry"
)

// newTestApp wires the full router without a database. Tenant pools fail
// to open, so any request reaching a partition gets a 500.
func newTestApp(t *testing.T) (*app, *int32) {
	t.Helper()
	var opened int32
	a := newTestAppWithFactory(t, func(context.Context, string) (*pgxpool.Pool, error) {
		atomic.AddInt32(&opened, 1)
		return nil, errors.New("database unavailable")
	})
	return a, &opened
}

func newTestAppWithFactory(t *testing.T, factory db.PoolFactory) *app {
	t.Helper()
	cfg := &config.Config{
		Env:                 "development",
		JWTSecret:           "test-secret-test-secret-test-secret",
		JWTIssuer:           "phc-test",
		JWTTTL:              time.Hour,
		CORSOrigins:         []string{"http://localhost:5173"},
		RateLimitRPS:        100,
		RateLimitBurst:      200,
		LoginRateLimitRPS:   1,
		LoginRateLimitBurst: 10,
		ProvisionTimeout:    time.Second,
		TenantMaxConns:      2,
		BodyLimit:           "1K",
	}
	store := auth.NewMemoryRevocationStore(time.Minute)
	a := &app{
		cfg:       cfg,
		logger:    zerolog.Nop(),
		metrics:   telemetry.New(),
		revoked:   store,
		publisher: events.Nop{},
		closers:   []func(){store.Close},
	}
	a.wire(factory)
	t.Cleanup(a.Close)
	return a
}

func bearer(t *testing.T, a *app, role, partition string) string {
	t.Helper()
	token, _, err := a.issuer.Issue(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             role,
		Partition:        partition,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func do(e http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Routes(t *testing.T) {
	a, _ := newTestApp(t)
	e := newServer(a)

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	want := []string{
		"GET /health",
		"GET /health/db",
		"GET /metrics",
		"POST /api/auth/login",
		"POST /api/auth/logout",
		"GET /api/auth/me",
		"POST /api/superadmin/tenants",
		"GET /api/superadmin/tenants",
		"GET /api/superadmin/tenants/:id",
		"PATCH /api/superadmin/tenants/:id/status",
		"GET /api/superadmin/partitions",
		"GET /api/patients/search",
		"GET /api/patients/:id",
		"GET /api/patients",
		"POST /api/patients",
		"POST /api/opd/visit",
		"GET /api/opd/queue",
		"POST /api/opd/consult/:id",
		"GET /api/lab/orders",
		"POST /api/lab/complete/:id",
		"GET /api/pharmacy/prescriptions",
		"POST /api/pharmacy/dispense/:id",
		"GET /api/beds",
		"POST /api/beds/init",
		"POST /api/beds",
		"POST /api/beds/admit",
		"POST /api/beds/discharge/:bedId",
		"GET /api/admin/users",
		"POST /api/admin/users",
		"GET /api/admin/audit",
		"GET /api/reports/opd",
		"GET /api/reports/admissions",
		"GET /api/reports/pharmacy",
		"GET /api/reports/lab",
	}
	for _, route := range want {
		assert.True(t, registered[route], "missing route %s", route)
	}
}

func TestNewServer_Health(t *testing.T) {
	a, _ := newTestApp(t)
	rec := do(newServer(a), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestNewServer_ClinicRoutesRequireToken(t *testing.T) {
	a, opened := newTestApp(t)
	rec := do(newServer(a), http.MethodGet, "/api/patients", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, atomic.LoadInt32(opened))
}

func TestNewServer_SuperAdminHasNoTenantContext(t *testing.T) {
	a, opened := newTestApp(t)
	rec := do(newServer(a), http.MethodGet, "/api/patients", bearer(t, a, auth.RoleSuperAdmin, ""), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, atomic.LoadInt32(opened))
}

func TestNewServer_PartitionFailureIsInternal(t *testing.T) {
	a, opened := newTestApp(t)
	partition := db.PartitionName(uuid.New())
	rec := do(newServer(a), http.MethodGet, "/api/patients", bearer(t, a, auth.RoleAdmin, partition), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(opened))
	assert.NotContains(t, rec.Body.String(), "database unavailable")
}

func TestNewServer_ClinicTokenCannotReachSuperAdmin(t *testing.T) {
	a, _ := newTestApp(t)
	partition := db.PartitionName(uuid.New())
	rec := do(newServer(a), http.MethodGet, "/api/superadmin/tenants", bearer(t, a, auth.RoleAdmin, partition), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNewServer_SlowPartitionTimesOut(t *testing.T) {
	a := newTestAppWithFactory(t, func(context.Context, string) (*pgxpool.Pool, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, errors.New("database unavailable")
	})
	a.cfg.RequestTimeout = 20 * time.Millisecond
	partition := db.PartitionName(uuid.New())

	rec := do(newServer(a), http.MethodGet, "/api/patients", bearer(t, a, auth.RoleAdmin, partition), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "please retry")
}

func TestNewServer_BodyLimit(t *testing.T) {
	a, _ := newTestApp(t)
	body := `{"email":"admin@phc.org","password":"` + strings.Repeat("x", 2048) + `"}`
	rec := do(newServer(a), http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestApp_ProvisionPoolIsSeparate(t *testing.T) {
	registry, err := pgxpool.New(context.Background(), "postgres://phc@127.0.0.1:1/phc")
	require.NoError(t, err)
	defer registry.Close()
	ddl, err := pgxpool.New(context.Background(), "postgres://phc@127.0.0.1:1/phc")
	require.NoError(t, err)
	defer ddl.Close()

	a := &app{registry: registry}
	assert.Same(t, registry, a.provisionPool())
	a.ddl = ddl
	assert.Same(t, ddl, a.provisionPool())
}

func TestNewServer_LoginValidation(t *testing.T) {
	a, _ := newTestApp(t)
	rec := do(newServer(a), http.MethodPost, "/api/auth/login", "", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewServer_Metrics(t *testing.T) {
	a, _ := newTestApp(t)
	e := newServer(a)
	do(e, http.MethodGet, "/health", "", "")
	rec := do(e, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/health")
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"serve", "migrate", "tenant", "superadmin"} {
		assert.True(t, names[name], "missing command %s", name)
	}

	root.SetArgs([]string{"tenant", "drop", uuid.NewString()})
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--confirm")
}
