package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fieldDispatch/business/bandit"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BanditStateRepository persists the learner's per-arm statistics as one JSON
// blob per state key. The whole state travels together so a crash between
// arm writes can never leave the arms inconsistent.
type BanditStateRepository struct {
	DB *gorm.DB
}

func NewBanditStateRepository(db *gorm.DB) *BanditStateRepository {
	return &BanditStateRepository{DB: db}
}

type banditStateRow struct {
	Key       string `gorm:"column:key;primaryKey"`
	StateJSON []byte `gorm:"column:state_json"`
}

func (banditStateRow) TableName() string {
	return "bandit_state"
}

func (r *BanditStateRepository) GetState(ctx context.Context, key string) (*bandit.LinUCBState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var row banditStateRow
	err := r.DB.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bandit_state: %w", err)
	}

	var state bandit.LinUCBState
	if err := json.Unmarshal(row.StateJSON, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state_json: %w", err)
	}

	return &state, nil
}

func (r *BanditStateRepository) SaveState(ctx context.Context, key string, state *bandit.LinUCBState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	row := banditStateRow{
		Key:       key,
		StateJSON: raw,
	}

	if err := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		},
	).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to upsert bandit_state: %w", err)
	}

	return nil
}
