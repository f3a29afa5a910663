package domain

import (
	"time"

	"gorm.io/datatypes"
)

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
	TicketBilled     TicketStatus = "billed"
	// TicketError is reserved for persistence-layer corruption, not for
	// rejected transitions.
	TicketError TicketStatus = "error"
)

// Ticket is the persisted field-service record. Version is an
// optimistic-concurrency counter incremented on every committed mutation;
// LastEventID prevents reapplying an already-applied event. Tickets belong
// to the technician assigned to the job; voice updates only ever resolve
// against the speaker's own tickets.
type Ticket struct {
	TicketID     string                      `gorm:"column:ticket_id;primaryKey" json:"ticket_id"`
	TechnicianID string                      `gorm:"column:technician_id;not null;index" json:"technician_id"`
	Customer     string                      `gorm:"column:customer;not null" json:"customer"`
	Status       TicketStatus                `gorm:"column:status;not null" json:"status"`
	PartsUsed    datatypes.JSONSlice[string] `gorm:"column:parts_used;type:jsonb" json:"parts_used"`
	BilledHours  float64                     `gorm:"column:billed_hours" json:"billed_hours"`
	LastEventID  string                      `gorm:"column:last_event_id" json:"last_event_id"`
	Version      int64                       `gorm:"column:version;not null" json:"version"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// Age of the ticket at time now, in hours.
func (t Ticket) AgeHours(now time.Time) float64 {
	if t.CreatedAt.IsZero() || now.Before(t.CreatedAt) {
		return 0
	}
	return now.Sub(t.CreatedAt).Hours()
}
