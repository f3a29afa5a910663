package domain

import "time"

// TechnicianContext is the rolling interaction history for one technician.
// It feeds the bandit's context vector and is updated after every committed
// interaction.
type TechnicianContext struct {
	TechnicianID     string  `gorm:"column:technician_id;primaryKey" json:"technician_id"`
	InteractionCount int     `gorm:"column:interaction_count;not null" json:"interaction_count"`
	RecentErrors     int     `gorm:"column:recent_errors;not null" json:"recent_errors"`
	// exponential moving average of event-to-reply latency, seconds
	AvgResponseTime float64 `gorm:"column:avg_response_time" json:"avg_response_time"`
	// PreferredStyle, when set, overrides the learner's choice for this
	// technician.
	PreferredStyle ResponseStyle `gorm:"column:preferred_style" json:"preferred_style"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (TechnicianContext) TableName() string {
	return "technician_contexts"
}
