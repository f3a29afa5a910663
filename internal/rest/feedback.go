package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fieldDispatch/business/bandit"
	"fieldDispatch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	FeedbackHandler struct {
		validate      *validator.Validate
		banditService FeedbackService
		rewardWindow  time.Duration
	}

	FeedbackService interface {
		ResolveFeedback(ctx context.Context, technicianID, correlationID, signal string, window time.Duration) (domain.DecisionRecord, error)
		Stats(ctx context.Context) ([]bandit.ArmStats, error)
	}

	FeedbackRequest struct {
		TechnicianID  string `json:"technician_id" validate:"required"`
		CorrelationID string `json:"correlation_id" validate:"required"`
		Signal        string `json:"signal" validate:"required,oneof=confirmed neutral repeated"`
	}
)

func NewFeedbackHandler(svc FeedbackService, rewardWindow time.Duration) *FeedbackHandler {
	return &FeedbackHandler{
		validate:      validator.New(),
		banditService: svc,
		rewardWindow:  rewardWindow,
	}
}

// Feedback resolves an outcome signal to its pending decision and applies
// the reward.
func (h *FeedbackHandler) Feedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	rec, err := h.banditService.ResolveFeedback(
		c.Request().Context(),
		req.TechnicianID,
		req.CorrelationID,
		req.Signal,
		h.rewardWindow,
	)
	if errors.Is(err, domain.ErrDecisionNotFound) {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "no pending decision for this interaction"})
	}
	if errors.Is(err, domain.ErrRewardAlreadySet) {
		return c.JSON(http.StatusConflict, ResponseError{Message: "feedback already recorded"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(rec))
}

// Stats exposes per-arm pull counts and weight estimates.
func (h *FeedbackHandler) Stats(c echo.Context) error {
	stats, err := h.banditService.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(stats))
}
