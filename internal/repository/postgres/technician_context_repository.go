package postgres

import (
	"context"
	"errors"
	"fmt"

	"fieldDispatch/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TechnicianContextRepository struct {
	DB *gorm.DB
}

func NewTechnicianContextRepository(db *gorm.DB) *TechnicianContextRepository {
	return &TechnicianContextRepository{DB: db}
}

// Get returns a zero-valued context for a technician without history.
func (r *TechnicianContextRepository) Get(ctx context.Context, technicianID string) (domain.TechnicianContext, error) {
	if err := ctx.Err(); err != nil {
		return domain.TechnicianContext{}, fmt.Errorf("context error: %w", err)
	}

	var tc domain.TechnicianContext
	err := r.DB.WithContext(ctx).First(&tc, "technician_id = ?", technicianID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TechnicianContext{TechnicianID: technicianID}, nil
	}
	if err != nil {
		return domain.TechnicianContext{}, fmt.Errorf("failed to query technician_contexts: %w", err)
	}

	return tc, nil
}

// SetPreferredStyle pins (or clears, with the empty style) a technician's
// response style. The upsert leaves the rolling counters alone, and the
// pipeline's context bumps never touch preferred_style, so the pin survives
// normal traffic.
func (r *TechnicianContextRepository) SetPreferredStyle(ctx context.Context, technicianID string, style domain.ResponseStyle) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	tc := domain.TechnicianContext{
		TechnicianID:   technicianID,
		PreferredStyle: style,
	}

	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "technician_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"preferred_style", "updated_at"}),
	}).Create(&tc).Error
	if err != nil {
		return fmt.Errorf("failed to set preferred style: %w", err)
	}

	return nil
}
