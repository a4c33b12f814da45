package pharmacy

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
	g := api.Group("/pharmacy", auth.RequireRole(auth.RoleAdmin, auth.RolePharmacist))
	g.GET("/prescriptions", h.ListPending)
	g.POST("/dispense/:id", h.Dispense)
}

func (h *Handler) ListPending(c echo.Context) error {
	items, err := h.svc.Pending(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.New(apperr.ErrValidation, "invalid id")
	}
	rx, err := h.svc.Dispense(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rx)
}
