package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldDispatch/domain"
	"fieldDispatch/pkg/logger"
	"fieldDispatch/pkg/metrics"

	"github.com/go-playground/validator/v10"
)

// ErrUnavailable marks a capability outage or timeout. It is the only
// retryable extraction failure; malformed or low-confidence output is a
// clarification outcome, not an error.
var ErrUnavailable = errors.New("extraction capability unavailable")

// Extractor is the external structured-extraction capability. Implementations
// must honor ctx cancellation and return ErrUnavailable (wrapped) on
// transport-level failure.
type Extractor interface {
	Extract(ctx context.Context, rawText, schemaHint string) (domain.ExtractedCommand, error)
}

type Service struct {
	extractor  Extractor
	validate   *validator.Validate
	threshold  float64
	maxRetries int
	retryDelay time.Duration
}

func NewService(extractor Extractor, threshold float64, maxRetries int) *Service {
	return &Service{
		extractor:  extractor,
		validate:   validator.New(),
		threshold:  threshold,
		maxRetries: maxRetries,
		retryDelay: 200 * time.Millisecond,
	}
}

// per-intent required entities; a command missing them is treated as
// low-confidence output rather than an error
type closeTicketEntities struct {
	Customer string `validate:"required"`
}

type logPartsEntities struct {
	Parts []string `validate:"required,min=1"`
}

type billingEntities struct {
	Hours *float64 `validate:"required,gte=0"`
}

// Extract invokes the capability with bounded retries, validates the result
// against the per-intent schema and applies the confidence floor. Anything
// below the floor (or structurally malformed) comes back as IntentUnknown,
// which routes the pipeline to a clarification response.
func (s *Service) Extract(ctx context.Context, rawText, schemaHint string) (domain.ExtractedCommand, error) {
	cmd, err := s.extractWithRetry(ctx, rawText, schemaHint)
	if err != nil {
		return domain.ExtractedCommand{}, err
	}

	if cmd.Confidence < 0 {
		cmd.Confidence = 0
	}
	if cmd.Confidence > 1 {
		cmd.Confidence = 1
	}

	if !s.schemaValid(cmd) {
		logger.Debug("extraction schema invalid, downgrading",
			"intent", cmd.Intent,
			"confidence", cmd.Confidence,
		)
		cmd.Intent = domain.IntentUnknown
		cmd.Confidence = 0
		return cmd, nil
	}

	if cmd.Confidence < s.threshold {
		logger.Debug("extraction below confidence floor, downgrading",
			"intent", cmd.Intent,
			"confidence", cmd.Confidence,
			"threshold", s.threshold,
		)
		cmd.Intent = domain.IntentUnknown
		return cmd, nil
	}

	return cmd, nil
}

func (s *Service) extractWithRetry(ctx context.Context, rawText, schemaHint string) (domain.ExtractedCommand, error) {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedCommand{}, fmt.Errorf("context error: %w", err)
		}

		cmd, err := s.extractor.Extract(ctx, rawText, schemaHint)
		if err == nil {
			return cmd, nil
		}

		if !errors.Is(err, ErrUnavailable) {
			return domain.ExtractedCommand{}, fmt.Errorf("extraction failed: %w", err)
		}

		lastErr = err
		if attempt < s.maxRetries {
			metrics.ExtractionRetries.Inc()
			logger.Warn("extraction unavailable, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return domain.ExtractedCommand{}, fmt.Errorf("context error: %w", ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}
	}

	return domain.ExtractedCommand{}, fmt.Errorf("extraction retries exhausted: %w", lastErr)
}

// schemaValid checks the intent enum and the required entities per intent.
func (s *Service) schemaValid(cmd domain.ExtractedCommand) bool {
	switch cmd.Intent {
	case domain.IntentUnknown:
		return true

	case domain.IntentCloseTicket:
		return s.validate.Struct(closeTicketEntities{Customer: cmd.Customer()}) == nil

	case domain.IntentLogParts:
		return s.validate.Struct(logPartsEntities{Parts: cmd.Parts()}) == nil

	case domain.IntentRequestBilling:
		var hours *float64
		if h, ok := cmd.Hours(); ok {
			hours = &h
		}
		return s.validate.Struct(billingEntities{Hours: hours}) == nil
	}

	// unrecognized intent value from the capability
	return false
}
