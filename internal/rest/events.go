package rest

import (
	"context"
	"net/http"
	"time"

	"fieldDispatch/domain"
	"fieldDispatch/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

type (
	EventsHandler struct {
		validate  *validator.Validate
		publisher EventPublisher
	}

	EventPublisher interface {
		Publish(ctx context.Context, ev domain.Event) (string, error)
		DeadLetters(ctx context.Context, limit int64) ([]domain.DeadLetter, error)
	}

	PublishEventRequest struct {
		EventID       string `json:"event_id"`
		CorrelationID string `json:"correlation_id" validate:"required"`
		RawText       string `json:"raw_text" validate:"required"`
		TechnicianID  string `json:"technician_id" validate:"required"`
	}
)

func NewEventsHandler(publisher EventPublisher) *EventsHandler {
	return &EventsHandler{
		validate:  validator.New(),
		publisher: publisher,
	}
}

// Publish enqueues one transcript event for the worker pool. The event_id is
// the client's dedup handle; omitted ids are generated server-side.
func (h *EventsHandler) Publish(c echo.Context) error {
	var req PublishEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	ev := domain.Event{
		EventID:       req.EventID,
		CorrelationID: req.CorrelationID,
		RawText:       req.RawText,
		TechnicianID:  req.TechnicianID,
		ReceivedAt:    time.Now(),
	}

	if _, err := h.publisher.Publish(c.Request().Context(), ev); err != nil {
		logger.Error("failed to publish event", "event_id", ev.EventID, "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK(map[string]string{
		"event_id": ev.EventID,
	}))
}

// DeadLetters lists the newest terminally failed events.
func (h *EventsHandler) DeadLetters(c echo.Context) error {
	letters, err := h.publisher.DeadLetters(c.Request().Context(), 50)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(letters))
}
