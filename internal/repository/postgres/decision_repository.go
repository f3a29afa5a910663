package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldDispatch/domain"

	"gorm.io/gorm"
)

type DecisionRepository struct {
	DB *gorm.DB
}

func NewDecisionRepository(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{DB: db}
}

// FindForFeedback resolves feedback to the newest unrewarded decision for the
// (technician, correlation) pair inside the reward window.
func (r *DecisionRepository) FindForFeedback(ctx context.Context, technicianID, correlationID string, window time.Duration) (domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("context error: %w", err)
	}

	cutoff := time.Now().Add(-window)

	var rec domain.DecisionRecord
	err := r.DB.WithContext(ctx).
		Where("technician_id = ?", technicianID).
		Where("correlation_id = ?", correlationID).
		Where("reward IS NULL").
		Where("decided_at >= ?", cutoff).
		Order("decided_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DecisionRecord{}, domain.ErrDecisionNotFound
	}
	if err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("failed to query decision_records: %w", err)
	}

	return rec, nil
}

// SetReward fills the reward exactly once. The guarded UPDATE makes
// concurrent feedback and the timeout sweeper race safely: the loser sees
// zero rows.
func (r *DecisionRepository) SetReward(ctx context.Context, decisionID string, reward float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	now := time.Now()
	row := r.DB.WithContext(ctx).
		Model(&domain.DecisionRecord{}).
		Where("decision_id = ?", decisionID).
		Where("reward IS NULL").
		Updates(map[string]any{
			"reward":      reward,
			"rewarded_at": now,
		})
	if row.Error != nil {
		return fmt.Errorf("failed to set reward: %w", row.Error)
	}

	if row.RowsAffected == 0 {
		var count int64
		if err := r.DB.WithContext(ctx).
			Model(&domain.DecisionRecord{}).
			Where("decision_id = ?", decisionID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check decision: %w", err)
		}
		if count == 0 {
			return domain.ErrDecisionNotFound
		}
		return domain.ErrRewardAlreadySet
	}

	return nil
}

func (r *DecisionRepository) ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var recs []domain.DecisionRecord
	err := r.DB.WithContext(ctx).
		Where("reward IS NULL").
		Where("decided_at < ?", olderThan).
		Order("decided_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired decisions: %w", err)
	}

	return recs, nil
}

// Recent returns the latest decisions for the ops endpoint.
func (r *DecisionRepository) Recent(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var recs []domain.DecisionRecord
	err := r.DB.WithContext(ctx).
		Order("decided_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	return recs, nil
}
