package rest

import (
	"context"
	"errors"
	"net/http"

	"fieldDispatch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	TicketsHandler struct {
		validate *validator.Validate
		tickets  TicketStore
	}

	TicketStore interface {
		GetByID(ctx context.Context, ticketID string) (domain.Ticket, error)
		List(ctx context.Context, statuses []domain.TicketStatus, limit int) ([]domain.Ticket, error)
		Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error)
	}

	CreateTicketRequest struct {
		TicketID     string `json:"ticket_id"`
		TechnicianID string `json:"technician_id" validate:"required"`
		Customer     string `json:"customer" validate:"required"`
	}

	ListTicketsQuery struct {
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}
)

func NewTicketsHandler(tickets TicketStore) *TicketsHandler {
	return &TicketsHandler{
		validate: validator.New(),
		tickets:  tickets,
	}
}

func (h *TicketsHandler) GetByID(c echo.Context) error {
	ticket, err := h.tickets.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, domain.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "ticket not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(ticket))
}

func (h *TicketsHandler) List(c echo.Context) error {
	var q ListTicketsQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	var statuses []domain.TicketStatus
	if q.Status != "" {
		statuses = append(statuses, domain.TicketStatus(q.Status))
	}

	tickets, err := h.tickets.List(c.Request().Context(), statuses, q.Limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(tickets))
}

// Create opens a new ticket. Dispatch normally opens tickets from the CRM;
// this endpoint backs manual intake and testing.
func (h *TicketsHandler) Create(c echo.Context) error {
	var req CreateTicketRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	if req.TicketID == "" {
		req.TicketID = uuid.NewString()
	}

	ticket, err := h.tickets.Create(c.Request().Context(), domain.Ticket{
		TicketID:     req.TicketID,
		TechnicianID: req.TechnicianID,
		Customer:     req.Customer,
		Status:       domain.TicketOpen,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(ticket))
}
