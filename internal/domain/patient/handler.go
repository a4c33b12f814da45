package patient

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients", auth.RequireRole(auth.RoleAdmin, auth.RoleNurse, auth.RoleDoctor, auth.RoleReceptionist))
	g.GET("/search", h.SearchPatients)
	g.GET("/:id", h.GetPatient)
	g.GET("", h.ListPatients)
	g.POST("", h.CreatePatient)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	p, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, p.ID.String())
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.New(apperr.ErrValidation, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	items, err := h.svc.Search(c.Request().Context(), c.QueryParam("query"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, items)
}
