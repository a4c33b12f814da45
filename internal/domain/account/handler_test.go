package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phc/phc/internal/domain/tenant"
	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/audit"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/middleware"
	"github.com/phc/phc/pkg/pagination"
)

type stubAudit struct {
	records []*audit.Record
	limit   int
}

func (s *stubAudit) ListTenant(_ context.Context, limit, offset int) ([]*audit.Record, int, error) {
	s.limit = limit
	return s.records, len(s.records), nil
}

func newTestHandler(t *testing.T) (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv(t)
	return NewHandler(env.svc, &stubAudit{}), env, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_LoginTenant(t *testing.T) {
	h, env, e := newTestHandler(t)
	tn := env.addClinic(t, "PHC-DEMO-001", tenant.StatusActive, "admin@demo.phc.com", "admin12345")

	rec := httptest.NewRecorder()
	body := `{"license_number":"PHC-DEMO-001","email":"admin@demo.phc.com","password":"admin12345"}`
	require.NoError(t, h.Login(e.NewContext(jsonRequest(http.MethodPost, "/api/auth/login", body), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, tn.PartitionName, res.User.Partition)
	assert.Equal(t, auth.RoleAdmin, res.User.Role)
}

func TestHandler_LoginPendingIsForbidden(t *testing.T) {
	h, env, e := newTestHandler(t)
	env.addClinic(t, "PHC-DEMO-001", tenant.StatusPending, "admin@demo.phc.com", "admin12345")

	body := `{"license_number":"PHC-DEMO-001","email":"admin@demo.phc.com","password":"admin12345"}`
	err := h.Login(e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder()))
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))
	assert.ErrorIs(t, err, ErrTenantPending)
}

func TestHandler_LoginValidation(t *testing.T) {
	h, _, e := newTestHandler(t)
	for _, body := range []string{`{"email":"not-an-email","password":"x"}`, `{"email":"a@b.org"}`, `{"email":`} {
		err := h.Login(e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder()))
		assert.Equal(t, http.StatusBadRequest, apperr.Status(err), body)
	}
}

func TestHandler_Me(t *testing.T) {
	h, env, e := newTestHandler(t)
	_, claims, err := env.issuer.Issue(auth.Claims{
		RegisteredClaims: subject("u-1"), Role: auth.RoleDoctor, Name: "Dr. Rao", Partition: "phc_a", TenantID: "t-1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	require.NoError(t, h.Me(e.NewContext(req, rec)))

	var p Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, Principal{ID: "u-1", Name: "Dr. Rao", Role: auth.RoleDoctor, TenantID: "t-1", Partition: "phc_a"}, p)
}

func TestHandler_MeWithoutSession(t *testing.T) {
	h, _, e := newTestHandler(t)
	err := h.Me(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))
}

func TestHandler_Logout(t *testing.T) {
	h, env, e := newTestHandler(t)
	_, claims, err := env.issuer.Issue(auth.Claims{RegisteredClaims: subject("u-1"), Role: auth.RoleNurse})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	require.NoError(t, h.Logout(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	revoked, _ := env.revoked.IsRevoked(context.Background(), claims.ID)
	assert.True(t, revoked)
}

func TestHandler_Users(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := jsonRequest(http.MethodPost, "/api/admin/users",
		`{"name":"Lab Tech","email":"lab@phc.org","password":"labtech123","role":"LAB_TECH"}`)
	req = req.WithContext(tenantCtx("phc_a"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.CreateUser(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, c.Get(middleware.AuditTargetKey))
	assert.NotContains(t, rec.Body.String(), "password")

	req = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil).WithContext(tenantCtx("phc_a"))
	rec = httptest.NewRecorder()
	require.NoError(t, h.ListUsers(e.NewContext(req, rec)))

	var users []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "lab@phc.org", users[0]["email"])
	_, hasHash := users[0]["password_hash"]
	assert.False(t, hasHash)
}

func TestHandler_ListUsersEmpty(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(tenantCtx("phc_a"))
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListUsers(e.NewContext(req, rec)))
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHandler_ListAudit(t *testing.T) {
	env := newTestEnv(t)
	trail := &stubAudit{records: []*audit.Record{{ID: uuid.New(), Action: "POST /api/patients", ActorID: "u-1"}}}
	h := NewHandler(env.svc, trail)

	rec := httptest.NewRecorder()
	require.NoError(t, h.ListAudit(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/?limit=10", nil), rec)))

	var resp pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 10, trail.limit)
}
