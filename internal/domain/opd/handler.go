package opd

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
	g := api.Group("/opd", auth.RequireRole(auth.RoleAdmin, auth.RoleNurse, auth.RoleDoctor, auth.RoleReceptionist))
	g.POST("/visit", h.CreateVisit)
	g.GET("/queue", h.GetQueue)
	g.POST("/consult/:id", h.Consult)
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var req CreateVisitRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	v, err := h.svc.CreateVisit(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditTargetKey, v.ID.String())
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetQueue(c echo.Context) error {
	queue, err := h.svc.Queue(c.Request().Context())
	if err != nil {
		return err
	}
	if queue == nil {
		queue = []*Visit{}
	}
	return c.JSON(http.StatusOK, queue)
}

func (h *Handler) Consult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.New(apperr.ErrValidation, "invalid id")
	}
	var req ConsultRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	v, err := h.svc.Consult(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
