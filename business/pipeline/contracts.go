package pipeline

import (
	"context"

	"fieldDispatch/domain"
)

// LeasedEvent pairs an event with its broker lease token. The lease is the
// only handle a worker may use to ack or release the delivery.
type LeasedEvent struct {
	Event   domain.Event
	LeaseID string
}

// Consumer is the sole authority over message-visibility lifecycle. Poll
// blocks up to the broker timeout and returns nil when no event is
// available. The broker is at-least-once: the same event_id may be leased
// again after a lease expires or a nack.
type Consumer interface {
	Poll(ctx context.Context) (*LeasedEvent, error)
	Ack(ctx context.Context, leaseID string) error
	// Nack releases the lease. retry=false routes the event to the
	// dead-letter stream instead of redelivery.
	Nack(ctx context.Context, leaseID string, retry bool) error
}

type ReservationState string

const (
	ReservationFresh     ReservationState = "fresh"
	ReservationDuplicate ReservationState = "duplicate"
	ReservationInFlight  ReservationState = "in_flight"
)

// IdempotencyGuard tracks which event ids already produced a committed
// effect. CheckAndReserve must be atomic across workers: exactly one caller
// may see fresh for a given id at a time.
type IdempotencyGuard interface {
	CheckAndReserve(ctx context.Context, eventID string) (ReservationState, error)
	MarkDone(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// TicketRepository resolves and reads tickets. Mutation goes exclusively
// through the TransactionManager.
type TicketRepository interface {
	GetByID(ctx context.Context, ticketID string) (domain.Ticket, error)
	// FindCurrent returns the most recently updated ticket for the
	// technician and customer in one of the given statuses;
	// domain.ErrTicketNotFound when there is none.
	FindCurrent(ctx context.Context, technicianID, customer string, statuses ...domain.TicketStatus) (domain.Ticket, error)
	// MarkError flags the ticket record after unrecoverable storage
	// failure.
	MarkError(ctx context.Context, ticketID string) error
}

type TechnicianRepository interface {
	// Get returns the rolling context, zero-valued when the technician is
	// new.
	Get(ctx context.Context, technicianID string) (domain.TechnicianContext, error)
}

// CommitSet is everything one pipeline pass must persist atomically:
// optional ticket mutation, the decision record, the durable idempotency
// marker, and the technician-context bump.
type CommitSet struct {
	Event   domain.Event
	Outcome string

	// Ticket is nil when the pass mutates nothing (clarification,
	// rejection). ExpectedVersion is the version the transition was
	// computed against.
	Ticket          *domain.Ticket
	ExpectedVersion int64

	Decision domain.DecisionRecord

	// ErrorOccurred feeds the technician's rolling error counter.
	ErrorOccurred bool
}

// TransactionManager applies a CommitSet as a single transaction.
// domain.ErrVersionConflict means the optimistic check failed and the caller
// should recompute; domain.ErrDuplicateEvent means another worker already
// committed this event id.
type TransactionManager interface {
	Commit(ctx context.Context, set CommitSet) error
}

// Composer converts the outcome into speech. Fire-and-forget: its failure is
// reported, never rolled into the committed transaction.
type Composer interface {
	Speak(ctx context.Context, text string, style domain.ResponseStyle) error
}
