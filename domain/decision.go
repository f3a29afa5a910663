package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ResponseStyle is one arm of the response-style bandit.
type ResponseStyle string

const (
	StyleConcise            ResponseStyle = "concise"
	StyleDetailed           ResponseStyle = "detailed"
	StyleClarifyingQuestion ResponseStyle = "clarifying_question"
)

// ResponseStyles is the fixed arm set, ordered by tie-break priority.
// Select breaks score ties by this order, never randomly.
var ResponseStyles = []ResponseStyle{
	StyleConcise,
	StyleDetailed,
	StyleClarifyingQuestion,
}

// Valid reports whether s is one of the known arms.
func (s ResponseStyle) Valid() bool {
	for _, style := range ResponseStyles {
		if s == style {
			return true
		}
	}
	return false
}

// DecisionRecord is the append-only log of one bandit decision. Reward stays
// nil until outcome feedback arrives (or the reward window expires); it is
// set exactly once.
type DecisionRecord struct {
	DecisionID    string            `gorm:"column:decision_id;primaryKey" json:"decision_id"`
	EventID       string            `gorm:"column:event_id;not null;uniqueIndex" json:"event_id"`
	TechnicianID  string            `gorm:"column:technician_id;not null;index:idx_decisions_correlation" json:"technician_id"`
	CorrelationID string            `gorm:"column:correlation_id;index:idx_decisions_correlation" json:"correlation_id"`
	Context       datatypes.JSONMap `gorm:"column:context;type:jsonb" json:"context"`
	ChosenArm     ResponseStyle     `gorm:"column:chosen_arm;not null" json:"chosen_arm"`
	Reward        *float64          `gorm:"column:reward" json:"reward"`
	DecidedAt     time.Time         `gorm:"column:decided_at;autoCreateTime" json:"decided_at"`
	RewardedAt    *time.Time        `gorm:"column:rewarded_at" json:"rewarded_at"`
}

func (DecisionRecord) TableName() string {
	return "decision_records"
}

// ProcessedEvent is the durable idempotency marker, inserted in the same
// transaction as the ticket mutation. A primary-key conflict on insert means
// the event already produced a committed effect.
type ProcessedEvent struct {
	EventID     string    `gorm:"column:event_id;primaryKey" json:"event_id"`
	TicketID    string    `gorm:"column:ticket_id" json:"ticket_id"`
	Outcome     string    `gorm:"column:outcome;not null" json:"outcome"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime" json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
