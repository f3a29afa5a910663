package domain

import "time"

// Event is one queued transcript awaiting processing. It is immutable once
// received; the broker may deliver the same event_id more than once.
type Event struct {
	EventID       string    `json:"event_id" validate:"required"`
	CorrelationID string    `json:"correlation_id" validate:"required"`
	RawText       string    `json:"raw_text" validate:"required"`
	TechnicianID  string    `json:"technician_id" validate:"required"`
	ReceivedAt    time.Time `json:"received_at"`
}

// DeadLetter wraps an event that exhausted its retries or failed terminally.
type DeadLetter struct {
	Event    Event     `json:"event"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
