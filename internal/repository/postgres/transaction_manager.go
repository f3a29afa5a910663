package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldDispatch/business/pipeline"
	"fieldDispatch/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ pipeline.TransactionManager = (*TransactionManager)(nil)

// TransactionManager applies one pipeline CommitSet atomically: the durable
// idempotency marker, the optional ticket mutation guarded by an optimistic
// version check, the decision record, and the technician-context bump. If any
// write fails the whole set rolls back and the event stays unprocessed.
type TransactionManager struct {
	DB *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{DB: db}
}

func (m *TransactionManager) Commit(ctx context.Context, set pipeline.CommitSet) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the processed_events primary key is the durable duplicate check;
		// inserting it first fails the whole set fast on a replay
		processed := domain.ProcessedEvent{
			EventID:  set.Event.EventID,
			TicketID: ticketID(set.Ticket),
			Outcome:  set.Outcome,
		}
		if err := tx.Create(&processed).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateEvent
			}
			return fmt.Errorf("failed to insert processed event: %w", err)
		}

		if set.Ticket != nil {
			if err := applyTicket(tx, set); err != nil {
				return err
			}
		}

		if err := tx.Create(&set.Decision).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateEvent
			}
			return fmt.Errorf("failed to insert decision record: %w", err)
		}

		if err := bumpTechnician(tx, set.Event.TechnicianID, set.ErrorOccurred, responseSeconds(set.Event.ReceivedAt)); err != nil {
			return err
		}

		return nil
	})
}

// applyTicket performs the optimistic write: the UPDATE only lands when the
// stored version still matches the version the transition was computed
// against.
func applyTicket(tx *gorm.DB, set pipeline.CommitSet) error {
	next := set.Ticket

	row := tx.Model(&domain.Ticket{}).
		Where("ticket_id = ?", next.TicketID).
		Where("version = ?", set.ExpectedVersion).
		Updates(map[string]any{
			"status":        next.Status,
			"parts_used":    next.PartsUsed,
			"billed_hours":  next.BilledHours,
			"last_event_id": next.LastEventID,
			"version":       set.ExpectedVersion + 1,
			"updated_at":    time.Now(),
		})
	if row.Error != nil {
		return fmt.Errorf("failed to update ticket: %w", row.Error)
	}
	if row.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}

// emaWeight is the share of the newest observation in the rolling
// reply-latency average.
const emaWeight = 0.2

// bumpTechnician maintains the rolling context that feeds the bandit's
// feature vector. A processed event always counts as an interaction;
// successes bleed the recent-error counter back toward zero, and every
// event folds its reply latency into the EMA.
func bumpTechnician(tx *gorm.DB, technicianID string, errorOccurred bool, replySeconds float64) error {
	errorDelta := 0
	if errorOccurred {
		errorDelta = 1
	}

	tc := domain.TechnicianContext{
		TechnicianID:     technicianID,
		InteractionCount: 1,
		RecentErrors:     errorDelta,
		AvgResponseTime:  replySeconds,
	}

	assignments := map[string]any{
		"interaction_count": gorm.Expr("technician_contexts.interaction_count + 1"),
		"avg_response_time": gorm.Expr(
			"technician_contexts.avg_response_time * ? + ? * ?",
			1-emaWeight, replySeconds, emaWeight,
		),
		"updated_at": time.Now(),
	}
	if errorOccurred {
		assignments["recent_errors"] = gorm.Expr("technician_contexts.recent_errors + 1")
	} else {
		assignments["recent_errors"] = gorm.Expr("GREATEST(technician_contexts.recent_errors - 1, 0)")
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "technician_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&tc).Error
	if err != nil {
		return fmt.Errorf("failed to upsert technician context: %w", err)
	}

	return nil
}

func responseSeconds(receivedAt time.Time) float64 {
	if receivedAt.IsZero() {
		return 0
	}
	s := time.Since(receivedAt).Seconds()
	if s < 0 {
		return 0
	}
	return s
}

func ticketID(t *domain.Ticket) string {
	if t == nil {
		return ""
	}
	return t.TicketID
}
