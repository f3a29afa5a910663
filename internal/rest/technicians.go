package rest

import (
	"context"
	"net/http"

	"fieldDispatch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	TechniciansHandler struct {
		validate    *validator.Validate
		technicians TechnicianStore
	}

	TechnicianStore interface {
		Get(ctx context.Context, technicianID string) (domain.TechnicianContext, error)
		SetPreferredStyle(ctx context.Context, technicianID string, style domain.ResponseStyle) error
	}

	SetStyleRequest struct {
		// empty clears the pin and hands the choice back to the learner
		Style string `json:"style" validate:"omitempty,oneof=concise detailed clarifying_question"`
	}
)

func NewTechniciansHandler(technicians TechnicianStore) *TechniciansHandler {
	return &TechniciansHandler{
		validate:    validator.New(),
		technicians: technicians,
	}
}

func (h *TechniciansHandler) Get(c echo.Context) error {
	tc, err := h.technicians.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(tc))
}

// SetStyle pins a technician's response style, bypassing the learner until
// the pin is cleared.
func (h *TechniciansHandler) SetStyle(c echo.Context) error {
	var req SetStyleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	err := h.technicians.SetPreferredStyle(c.Request().Context(), c.Param("id"), domain.ResponseStyle(req.Style))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	tc, err := h.technicians.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(tc))
}
