package account

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/audit"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/middleware"
	"github.com/phc/phc/pkg/pagination"
)

// AuditLister reads the audit trail of the partition in ctx.
// *audit.Store implements it.
type AuditLister interface {
	ListTenant(ctx context.Context, limit, offset int) ([]*audit.Record, int, error)
}

type Handler struct {
	svc   *Service
	audit AuditLister
}

func NewHandler(svc *Service, trail AuditLister) *Handler {
	return &Handler{svc: svc, audit: trail}
}

// RegisterAuthRoutes mounts login on g behind limit, and the session
// routes behind requireAuth.
func (h *Handler) RegisterAuthRoutes(g *echo.Group, requireAuth, limit echo.MiddlewareFunc) {
	g.POST("/login", h.Login, limit)
	g.POST("/logout", h.Logout, requireAuth)
	g.GET("/me", h.Me, requireAuth)
}

// RegisterAdminRoutes mounts the clinic admin routes on a tenant-scoped
// group.
func (h *Handler) RegisterAdminRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.GET("/users", h.ListUsers)
	g.POST("/users", h.CreateUser)
	g.GET("/audit", h.ListAudit)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	if err := h.svc.validator.Struct(req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req.Credentials())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	claims := auth.ClaimsFromContext(c.Request().Context())
	if err := h.svc.Logout(c.Request().Context(), claims); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	claims := auth.ClaimsFromContext(c.Request().Context())
	if claims == nil {
		return apperr.New(apperr.ErrUnauthorized, "no session")
	}
	return c.JSON(http.StatusOK, Principal{
		ID:        claims.Subject,
		Name:      claims.Name,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		Partition: claims.Partition,
	})
}

func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	u, err := h.svc.CreateUser(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, u.ID.String())
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListAudit(c echo.Context) error {
	pg := pagination.FromContext(c)
	records, total, err := h.audit.ListTenant(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*audit.Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg))
}
