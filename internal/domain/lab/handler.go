package lab

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/lab", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech, auth.RoleDoctor))
	g.GET("/orders", h.ListPending)
	g.POST("/complete/:id", h.Complete)
}

func (h *Handler) ListPending(c echo.Context) error {
	orders, err := h.svc.PendingOrders(c.Request().Context())
	if err != nil {
		return err
	}
	if orders == nil {
		orders = []*Order{}
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.New(apperr.ErrValidation, "invalid id")
	}
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	o, err := h.svc.Complete(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}
