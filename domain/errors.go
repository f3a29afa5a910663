package domain

import "errors"

var (
	// ErrVersionConflict: optimistic-concurrency check failed, the caller
	// should recompute against the latest ticket state.
	ErrVersionConflict = errors.New("ticket version conflict")

	// ErrDuplicateEvent: the event already produced a committed effect.
	ErrDuplicateEvent = errors.New("event already processed")

	ErrTicketNotFound   = errors.New("ticket not found")
	ErrDecisionNotFound = errors.New("decision not found")

	// ErrRewardAlreadySet: decision records are append-only, reward is set
	// exactly once.
	ErrRewardAlreadySet = errors.New("reward already set")
)
