package ticket

import (
	"fmt"

	"fieldDispatch/domain"
)

// Outcome classifies what a transition attempt did to the ticket.
type Outcome string

const (
	// OutcomeApplied: the ticket was mutated and must be committed.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: the event was already applied to this ticket
	// (last_event_id match); safe no-op.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeClarify: unknown intent, no mutation, the technician should be
	// asked to clarify.
	OutcomeClarify Outcome = "clarify"
	// OutcomeRejected: the transition is not in the valid table; the ticket
	// is unchanged and the event is flagged for human review.
	OutcomeRejected Outcome = "rejected"
)

// InvalidTransitionError reports a (status, intent) pair outside the
// transition table.
type InvalidTransitionError struct {
	From   domain.TicketStatus
	Intent domain.Intent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: intent %q from status %q", e.Intent, e.From)
}

// Apply is a pure function of (ticket, command, event id). It never performs
// I/O and never mutates its input; the returned ticket is a copy. Version
// bookkeeping belongs to the commit path, not here.
func Apply(t domain.Ticket, cmd domain.ExtractedCommand, eventID string) (domain.Ticket, Outcome, error) {
	// Duplicate delivery of an already-applied event is always a safe no-op,
	// whatever the current status.
	if eventID != "" && t.LastEventID == eventID {
		return t, OutcomeDuplicate, nil
	}

	switch cmd.Intent {
	case domain.IntentUnknown:
		return t, OutcomeClarify, nil

	case domain.IntentCloseTicket:
		return applyClose(t, cmd, eventID)

	case domain.IntentLogParts:
		return applyLogParts(t, cmd, eventID)

	case domain.IntentRequestBilling:
		return applyBilling(t, cmd, eventID)
	}

	return t, OutcomeRejected, &InvalidTransitionError{From: t.Status, Intent: cmd.Intent}
}

func applyClose(t domain.Ticket, cmd domain.ExtractedCommand, eventID string) (domain.Ticket, Outcome, error) {
	switch t.Status {
	case domain.TicketOpen, domain.TicketInProgress:
		next := t
		next.Status = domain.TicketClosed
		if parts := cmd.Parts(); len(parts) > 0 {
			next.PartsUsed = appendParts(t.PartsUsed, parts)
		}
		next.LastEventID = eventID
		return next, OutcomeApplied, nil
	}

	return t, OutcomeRejected, &InvalidTransitionError{From: t.Status, Intent: cmd.Intent}
}

func applyLogParts(t domain.Ticket, cmd domain.ExtractedCommand, eventID string) (domain.Ticket, Outcome, error) {
	switch t.Status {
	case domain.TicketOpen, domain.TicketInProgress:
		next := t
		next.PartsUsed = appendParts(t.PartsUsed, cmd.Parts())
		if next.Status == domain.TicketOpen {
			next.Status = domain.TicketInProgress
		}
		next.LastEventID = eventID
		return next, OutcomeApplied, nil
	}

	return t, OutcomeRejected, &InvalidTransitionError{From: t.Status, Intent: cmd.Intent}
}

func applyBilling(t domain.Ticket, cmd domain.ExtractedCommand, eventID string) (domain.Ticket, Outcome, error) {
	if t.Status != domain.TicketClosed {
		return t, OutcomeRejected, &InvalidTransitionError{From: t.Status, Intent: cmd.Intent}
	}

	hours, ok := cmd.Hours()
	if !ok || hours < 0 {
		// hours is a required entity for this intent; a command without it
		// should have been downgraded upstream
		return t, OutcomeRejected, &InvalidTransitionError{From: t.Status, Intent: cmd.Intent}
	}

	next := t
	next.BilledHours = hours
	next.Status = domain.TicketBilled
	next.LastEventID = eventID
	return next, OutcomeApplied, nil
}

// appendParts copies the backing slice so the caller's ticket stays intact.
func appendParts(existing []string, parts []string) []string {
	out := make([]string, 0, len(existing)+len(parts))
	out = append(out, existing...)
	out = append(out, parts...)
	return out
}
