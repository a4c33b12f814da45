package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/beds", auth.RequireRole(auth.RoleAdmin, auth.RoleNurse, auth.RoleDoctor))
	g.GET("", h.List)
	g.POST("/init", h.Init)
	g.POST("", h.AddBed)
	g.POST("/admit", h.Admit)
	g.POST("/discharge/:bedId", h.Discharge)
}

func (h *Handler) List(c echo.Context) error {
	beds, err := h.svc.List(c.Request().Context())
	if err != nil {
		return err
	}
	if beds == nil {
		beds = []*Bed{}
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) Init(c echo.Context) error {
	n, err := h.svc.Init(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"created": n})
}

func (h *Handler) AddBed(c echo.Context) error {
	var req AddBedRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	bed, err := h.svc.AddBed(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, bed.ID.String())
	return c.JSON(http.StatusCreated, bed)
}

func (h *Handler) Admit(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	a, err := h.svc.Admit(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, a.ID.String())
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Discharge(c echo.Context) error {
	bedID, err := uuid.Parse(c.Param("bedId"))
	if err != nil {
		return apperr.New(apperr.ErrValidation, "invalid bed id")
	}
	a, err := h.svc.Discharge(c.Request().Context(), bedID)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, a.ID.String())
	return c.JSON(http.StatusOK, a)
}
