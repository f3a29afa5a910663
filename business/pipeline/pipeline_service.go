package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldDispatch/business/bandit"
	"fieldDispatch/business/extraction"
	"fieldDispatch/business/ticket"
	"fieldDispatch/domain"
	"fieldDispatch/pkg/logger"
	"fieldDispatch/pkg/metrics"

	"github.com/google/uuid"
)

// Terminal outcomes of one pipeline pass.
const (
	OutcomeApplied       = "applied"
	OutcomeDuplicate     = "duplicate"
	OutcomeClarification = "clarification"
	OutcomeRejected      = "rejected"
)

const maxCommitRetries = 3

type Service struct {
	extraction  *extraction.Service
	bandit      *bandit.Service
	tickets     TicketRepository
	technicians TechnicianRepository
	tx          TransactionManager
	guard       IdempotencyGuard
	consumer    Consumer
	composer    Composer

	now func() time.Time
}

func NewService(
	extractionSvc *extraction.Service,
	banditSvc *bandit.Service,
	tickets TicketRepository,
	technicians TechnicianRepository,
	tx TransactionManager,
	guard IdempotencyGuard,
	consumer Consumer,
	composer Composer,
) *Service {
	return &Service{
		extraction:  extractionSvc,
		bandit:      banditSvc,
		tickets:     tickets,
		technicians: technicians,
		tx:          tx,
		guard:       guard,
		consumer:    consumer,
		composer:    composer,
		now:         time.Now,
	}
}

// pass is the computed plan for one event before commit.
type pass struct {
	outcome string
	// ticket mutation; nil when the pass only records a decision
	ticket          *domain.Ticket
	expectedVersion int64
	text            string
	forced          bool
	errorOccurred   bool
}

// ProcessOne runs the full pipeline for one leased event and settles the
// lease (ack, redeliver, or dead-letter). It returns the terminal outcome
// for observability; an error return means the event was released for
// redelivery.
func (s *Service) ProcessOne(ctx context.Context, leased *LeasedEvent) (string, error) {
	ev := leased.Event
	start := s.now()

	reservation, err := s.guard.CheckAndReserve(ctx, ev.EventID)
	if err != nil {
		// guard outage is transient: leave the lease to expire back to the
		// broker
		s.nack(ctx, leased, true)
		return "", fmt.Errorf("idempotency check failed: %w", err)
	}

	switch reservation {
	case ReservationDuplicate:
		// ack was lost in transit on a previous pass: re-acknowledge,
		// apply nothing
		s.ack(ctx, leased, ev)
		metrics.PipelineEventsTotal.WithLabelValues(OutcomeDuplicate).Inc()
		logger.Info("duplicate event re-acknowledged", "event_id", ev.EventID)
		return OutcomeDuplicate, nil

	case ReservationInFlight:
		// a concurrent worker holds the in-flight marker; let the broker
		// redeliver later
		s.nack(ctx, leased, true)
		logger.Debug("event in flight elsewhere", "event_id", ev.EventID)
		return "", nil
	}

	outcome, err := s.processFresh(ctx, leased)
	if err != nil {
		return "", err
	}

	metrics.PipelineProcessLatency.Observe(s.now().Sub(start).Seconds())
	metrics.PipelineEventsTotal.WithLabelValues(outcome).Inc()
	return outcome, nil
}

func (s *Service) processFresh(ctx context.Context, leased *LeasedEvent) (string, error) {
	ev := leased.Event

	cmd, err := s.extraction.Extract(ctx, ev.RawText, string(domain.IntentUnknown))
	if err != nil {
		// capability outage after bounded local retries: release for
		// broker-managed redelivery
		s.release(ctx, ev.EventID)
		s.nack(ctx, leased, true)
		return "", fmt.Errorf("extraction failed for event %s: %w", ev.EventID, err)
	}

	techCtx, err := s.technicians.Get(ctx, ev.TechnicianID)
	if err != nil {
		logger.Warn("technician context unavailable, using defaults",
			"technician_id", ev.TechnicianID,
			"error", err,
		)
		techCtx = domain.TechnicianContext{TechnicianID: ev.TechnicianID}
	}

	p, tk, err := s.plan(ctx, ev, cmd)
	if err != nil {
		s.release(ctx, ev.EventID)
		s.nack(ctx, leased, true)
		return "", err
	}

	if p.outcome == OutcomeDuplicate {
		// the ticket already carries this event id: a previous pass
		// committed and lost its ack
		s.markDone(ctx, ev.EventID)
		s.ack(ctx, leased, ev)
		logger.Info("already-applied event re-acknowledged", "event_id", ev.EventID)
		return OutcomeDuplicate, nil
	}

	banditCtx := bandit.ContextAt(s.now(), techCtx.InteractionCount, techCtx.RecentErrors,
		techCtx.AvgResponseTime, tk.AgeHours(s.now()))

	style := domain.StyleClarifyingQuestion
	overridden := false
	switch {
	case p.forced:
		// clarifications and rejections always speak as questions
	case techCtx.PreferredStyle.Valid():
		// an explicit technician preference beats the learner
		style = techCtx.PreferredStyle
		overridden = true
	default:
		style, err = s.bandit.Select(ctx, banditCtx)
		if err != nil {
			s.release(ctx, ev.EventID)
			s.nack(ctx, leased, true)
			return "", fmt.Errorf("style selection failed: %w", err)
		}
	}

	snapshot := banditCtx.Snapshot()
	if p.forced || overridden {
		// forced and preferred styles are not bandit choices; feedback on
		// them must not train the learner
		snapshot["forced"] = true
	}

	set := CommitSet{
		Event:   ev,
		Outcome: p.outcome,
		Ticket:  p.ticket,
		Decision: domain.DecisionRecord{
			DecisionID:    uuid.NewString(),
			EventID:       ev.EventID,
			TechnicianID:  ev.TechnicianID,
			CorrelationID: ev.CorrelationID,
			Context:       snapshot,
			ChosenArm:     style,
		},
		ExpectedVersion: p.expectedVersion,
		ErrorOccurred:   p.errorOccurred,
	}

	// the commit may recompute the transition after a version conflict;
	// everything spoken or reported from here on follows the committed
	// plan, not the one computed above
	final, err := s.commitWithRetry(ctx, leased, set, p, cmd)
	if err != nil {
		return "", err
	}
	if final.outcome == OutcomeDuplicate {
		return OutcomeDuplicate, nil
	}

	if final.forced {
		style = domain.StyleClarifyingQuestion
	}

	if final.outcome == OutcomeRejected {
		logger.Warn("transition rejected, flagged for review",
			"event_id", ev.EventID,
			"technician_id", ev.TechnicianID,
			"intent", cmd.Intent,
			"customer", cmd.Customer(),
		)
	}

	s.speak(final.text, style, ev)

	return final.outcome, nil
}

// plan resolves the target ticket and computes the transition. It performs
// reads only; all writes happen in the commit.
func (s *Service) plan(ctx context.Context, ev domain.Event, cmd domain.ExtractedCommand) (pass, domain.Ticket, error) {
	if cmd.Intent == domain.IntentUnknown {
		return pass{
			outcome: OutcomeClarification,
			text:    "Sorry, I didn't catch that. Could you repeat the ticket update?",
			forced:  true,
		}, domain.Ticket{}, nil
	}

	tk, err := s.resolveTicket(ctx, ev, cmd)
	if errors.Is(err, domain.ErrTicketNotFound) {
		return pass{
			outcome:       OutcomeRejected,
			text:          fmt.Sprintf("I couldn't find a matching ticket for %s. Flagging this for review.", cmd.Customer()),
			forced:        true,
			errorOccurred: true,
		}, domain.Ticket{}, nil
	}
	if err != nil {
		return pass{}, domain.Ticket{}, fmt.Errorf("ticket lookup failed: %w", err)
	}

	return s.planTransition(tk, cmd, ev.EventID), tk, nil
}

func (s *Service) planTransition(tk domain.Ticket, cmd domain.ExtractedCommand, eventID string) pass {
	next, outcome, _ := ticket.Apply(tk, cmd, eventID)

	switch outcome {
	case ticket.OutcomeApplied:
		return pass{
			outcome:         OutcomeApplied,
			ticket:          &next,
			expectedVersion: tk.Version,
			text:            appliedText(next, cmd),
		}

	case ticket.OutcomeDuplicate:
		return pass{outcome: OutcomeDuplicate}

	case ticket.OutcomeClarify:
		return pass{
			outcome: OutcomeClarification,
			text:    "Sorry, I didn't catch that. Could you repeat the ticket update?",
			forced:  true,
		}
	}

	// invalid transition: ticket untouched, event flagged for human review
	return pass{
		outcome:       OutcomeRejected,
		text:          fmt.Sprintf("That update isn't valid for ticket %s right now. Flagging it for review.", tk.TicketID),
		forced:        true,
		errorOccurred: true,
	}
}

func (s *Service) resolveTicket(ctx context.Context, ev domain.Event, cmd domain.ExtractedCommand) (domain.Ticket, error) {
	// an already-applied event must resolve to its ticket whatever the
	// status, so redelivery stays a no-op
	if tk, err := s.tickets.FindCurrent(ctx, ev.TechnicianID, cmd.Customer(),
		domain.TicketOpen, domain.TicketInProgress, domain.TicketClosed, domain.TicketBilled); err == nil && tk.LastEventID == ev.EventID {
		return tk, nil
	}

	switch cmd.Intent {
	case domain.IntentCloseTicket, domain.IntentLogParts:
		return s.tickets.FindCurrent(ctx, ev.TechnicianID, cmd.Customer(), domain.TicketOpen, domain.TicketInProgress)
	case domain.IntentRequestBilling:
		return s.tickets.FindCurrent(ctx, ev.TechnicianID, cmd.Customer(), domain.TicketClosed)
	}

	return domain.Ticket{}, domain.ErrTicketNotFound
}

// commitWithRetry drives the transaction and returns the pass that actually
// committed. A version conflict recomputes the transition against the fresh
// ticket, so the committed pass can differ from the one handed in; callers
// must speak and report from the returned pass.
func (s *Service) commitWithRetry(ctx context.Context, leased *LeasedEvent, set CommitSet, p pass, cmd domain.ExtractedCommand) (pass, error) {
	ev := leased.Event

	for attempt := 0; ; attempt++ {
		err := s.tx.Commit(ctx, set)
		if err == nil {
			s.markDone(ctx, ev.EventID)
			s.ack(ctx, leased, ev)
			return p, nil
		}

		if errors.Is(err, domain.ErrDuplicateEvent) {
			// another worker committed this event between our reserve and
			// commit; re-acknowledge without effect
			s.markDone(ctx, ev.EventID)
			s.ack(ctx, leased, ev)
			logger.Info("commit raced a duplicate, re-acknowledged", "event_id", ev.EventID)
			return pass{outcome: OutcomeDuplicate}, nil
		}

		if errors.Is(err, domain.ErrVersionConflict) && set.Ticket != nil && attempt < maxCommitRetries {
			metrics.PipelineCommitConflicts.Inc()
			logger.Debug("version conflict, recomputing transition",
				"event_id", ev.EventID,
				"ticket_id", set.Ticket.TicketID,
				"attempt", attempt+1,
			)

			latest, ferr := s.tickets.GetByID(ctx, set.Ticket.TicketID)
			if ferr != nil {
				s.release(ctx, ev.EventID)
				s.nack(ctx, leased, true)
				return pass{}, fmt.Errorf("refetch after conflict failed: %w", ferr)
			}

			p = s.planTransition(latest, cmd, ev.EventID)
			if p.outcome == OutcomeDuplicate {
				s.markDone(ctx, ev.EventID)
				s.ack(ctx, leased, ev)
				return pass{outcome: OutcomeDuplicate}, nil
			}

			set.Outcome = p.outcome
			set.Ticket = p.ticket
			set.ExpectedVersion = p.expectedVersion
			set.ErrorOccurred = p.errorOccurred
			if p.forced {
				set.Decision.ChosenArm = domain.StyleClarifyingQuestion
				set.Decision.Context["forced"] = true
			}
			continue
		}

		if errors.Is(err, domain.ErrVersionConflict) {
			// conflict retries exhausted: release for redelivery
			s.release(ctx, ev.EventID)
			s.nack(ctx, leased, true)
			return pass{}, fmt.Errorf("commit conflict retries exhausted for event %s: %w", ev.EventID, err)
		}

		// unrecoverable storage failure: surface, flag the ticket, release
		// the event
		if set.Ticket != nil {
			if merr := s.tickets.MarkError(ctx, set.Ticket.TicketID); merr != nil {
				logger.Error("failed to mark ticket error",
					"ticket_id", set.Ticket.TicketID,
					"error", merr,
				)
			}
		}
		s.release(ctx, ev.EventID)
		s.nack(ctx, leased, true)
		return pass{}, fmt.Errorf("commit failed for event %s: %w", ev.EventID, err)
	}
}

// speak hands the outcome to the composer without joining the transaction;
// a composer failure is reported, not retried.
func (s *Service) speak(text string, style domain.ResponseStyle, ev domain.Event) {
	if s.composer == nil || text == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.composer.Speak(ctx, text, style); err != nil {
			logger.Error("composer failed",
				"event_id", ev.EventID,
				"style", style,
				"error", err,
			)
		}
	}()
}

func appliedText(tk domain.Ticket, cmd domain.ExtractedCommand) string {
	switch cmd.Intent {
	case domain.IntentCloseTicket:
		return fmt.Sprintf("Ticket %s closed for %s.", tk.TicketID, tk.Customer)
	case domain.IntentLogParts:
		return fmt.Sprintf("Logged %d part(s) on ticket %s.", len(cmd.Parts()), tk.TicketID)
	case domain.IntentRequestBilling:
		return fmt.Sprintf("Ticket %s billed %.1f hours.", tk.TicketID, tk.BilledHours)
	}
	return fmt.Sprintf("Ticket %s updated.", tk.TicketID)
}

func (s *Service) ack(ctx context.Context, leased *LeasedEvent, ev domain.Event) {
	if err := s.consumer.Ack(ctx, leased.LeaseID); err != nil {
		// broker redelivery will bring the event back; the idempotency
		// guard absorbs it
		logger.Warn("ack failed", "event_id", ev.EventID, "error", err)
	}
}

func (s *Service) nack(ctx context.Context, leased *LeasedEvent, retry bool) {
	if err := s.consumer.Nack(ctx, leased.LeaseID, retry); err != nil {
		logger.Warn("nack failed", "event_id", leased.Event.EventID, "error", err)
	}
}

func (s *Service) markDone(ctx context.Context, eventID string) {
	if err := s.guard.MarkDone(ctx, eventID); err != nil {
		logger.Warn("failed to mark event done", "event_id", eventID, "error", err)
	}
}

func (s *Service) release(ctx context.Context, eventID string) {
	if err := s.guard.Release(ctx, eventID); err != nil {
		logger.Warn("failed to release in-flight marker", "event_id", eventID, "error", err)
	}
}
