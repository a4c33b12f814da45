package tenant

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/middleware"
	"github.com/phc/phc/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the super-admin registry routes on api. Callers must
// have applied the JWT middleware; tenant tokens are rejected by role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/superadmin", auth.RequireRole(auth.RoleSuperAdmin))
	g.POST("/tenants", h.CreateTenant)
	g.GET("/tenants", h.ListTenants)
	g.GET("/tenants/:id", h.GetTenant)
	g.PATCH("/tenants/:id/status", h.SetStatus)
	g.GET("/partitions", h.ListPartitions)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.ErrValidation, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateTenant(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	t, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, t.ID.String())
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTenants(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Tenant{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetTenant(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	t, err := h.svc.SetStatus(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListPartitions(c echo.Context) error {
	names, err := h.svc.Partitions(c.Request().Context())
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"partitions": names})
}
