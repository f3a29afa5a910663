package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"fieldDispatch/business/pipeline"
	"fieldDispatch/domain"
	"fieldDispatch/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	pollBlock = 2 * time.Second

	// deliveries beyond this count are considered poison and routed to the
	// dead-letter stream
	maxDeliveries = 5
)

var _ pipeline.Consumer = (*StreamBroker)(nil)

// StreamBroker is the at-least-once event transport on Redis Streams. Each
// worker process joins one consumer group; a delivery stays pending until it
// is acked, and entries idle past the lease window are reclaimed from dead
// consumers via XAUTOCLAIM.
type StreamBroker struct {
	client       *redis.Client
	stream       string
	group        string
	deadLetter   string
	consumerName string
	leaseWindow  time.Duration

	// all pool workers share one broker; the claim window is contended
	claimMu   sync.Mutex
	lastClaim time.Time
}

func NewStreamBroker(ctx context.Context, client *redis.Client, stream, group, deadLetter string, leaseWindow time.Duration) (*StreamBroker, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", group, err)
	}

	host, _ := os.Hostname()
	consumerName := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])

	return &StreamBroker{
		client:       client,
		stream:       stream,
		group:        group,
		deadLetter:   deadLetter,
		consumerName: consumerName,
		leaseWindow:  leaseWindow,
	}, nil
}

// Poll returns the next leased event, preferring entries reclaimed from
// expired leases over new deliveries. Returns nil when the block timeout
// passes without a message.
func (b *StreamBroker) Poll(ctx context.Context) (*pipeline.LeasedEvent, error) {
	if leased, err := b.claimExpired(ctx); err != nil || leased != nil {
		return leased, err
	}

	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumerName,
		Streams:  []string{b.stream, ">"},
		Count:    1,
		Block:    pollBlock,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", b.stream, err)
	}

	for _, s := range streams {
		for _, msg := range s.Messages {
			return b.lease(ctx, msg)
		}
	}
	return nil, nil
}

// claimExpired periodically sweeps entries whose lease ran out on another
// consumer.
func (b *StreamBroker) claimExpired(ctx context.Context) (*pipeline.LeasedEvent, error) {
	if !b.claimDue() {
		return nil, nil
	}

	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream,
		Group:    b.group,
		Consumer: b.consumerName,
		MinIdle:  b.leaseWindow,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to claim expired leases: %w", err)
	}

	for _, msg := range msgs {
		logger.Info("reclaimed expired lease", "message_id", msg.ID)
		return b.lease(ctx, msg)
	}
	return nil, nil
}

// claimDue reports whether a lease sweep is owed and, if so, takes it.
// At most one worker wins per lease window.
func (b *StreamBroker) claimDue() bool {
	b.claimMu.Lock()
	defer b.claimMu.Unlock()

	if time.Since(b.lastClaim) < b.leaseWindow {
		return false
	}
	b.lastClaim = time.Now()
	return true
}

func (b *StreamBroker) lease(ctx context.Context, msg redis.XMessage) (*pipeline.LeasedEvent, error) {
	ev, err := eventFromMessage(msg)
	if err != nil {
		// malformed entries can never process; dead-letter immediately
		logger.Error("malformed stream entry", "message_id", msg.ID, "error", err)
		if dlErr := b.deadLetterMessage(ctx, msg, err.Error()); dlErr != nil {
			return nil, dlErr
		}
		return nil, nil
	}

	if deliveries, derr := b.deliveryCount(ctx, msg.ID); derr == nil && deliveries > maxDeliveries {
		logger.Warn("poison event dead-lettered",
			"event_id", ev.EventID,
			"deliveries", deliveries,
		)
		if dlErr := b.deadLetterMessage(ctx, msg, "max deliveries exceeded"); dlErr != nil {
			return nil, dlErr
		}
		return nil, nil
	}

	return &pipeline.LeasedEvent{Event: ev, LeaseID: msg.ID}, nil
}

func (b *StreamBroker) Ack(ctx context.Context, leaseID string) error {
	if err := b.client.XAck(ctx, b.stream, b.group, leaseID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", leaseID, err)
	}
	return nil
}

// Nack with retry leaves the entry pending so the lease sweep redelivers it;
// without retry the entry moves to the dead-letter stream.
func (b *StreamBroker) Nack(ctx context.Context, leaseID string, retry bool) error {
	if retry {
		return nil
	}

	msgs, err := b.client.XRangeN(ctx, b.stream, leaseID, leaseID, 1).Result()
	if err != nil {
		return fmt.Errorf("failed to read entry %s for dead-letter: %w", leaseID, err)
	}
	if len(msgs) == 0 {
		// already trimmed; just drop the pending entry
		return b.Ack(ctx, leaseID)
	}

	return b.deadLetterMessage(ctx, msgs[0], "terminal failure")
}

func (b *StreamBroker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason string) error {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["dead_letter_reason"] = reason
	values["failed_at"] = time.Now().Format(time.RFC3339)

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.deadLetter,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", msg.ID, err)
	}

	return b.Ack(ctx, msg.ID)
}

func (b *StreamBroker) deliveryCount(ctx context.Context, messageID string) (int64, error) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.stream,
		Group:  b.group,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, errors.New("entry not pending")
	}
	return pending[0].RetryCount, nil
}

// Publish appends an event to the intake stream. Used by the ingest endpoint
// and by tests; workers never publish.
func (b *StreamBroker) Publish(ctx context.Context, ev domain.Event) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: eventToValues(ev),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish event %s: %w", ev.EventID, err)
	}
	return id, nil
}

// DeadLetters returns the newest entries on the dead-letter stream.
func (b *StreamBroker) DeadLetters(ctx context.Context, limit int64) ([]domain.DeadLetter, error) {
	msgs, err := b.client.XRevRangeN(ctx, b.deadLetter, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead-letter stream: %w", err)
	}

	out := make([]domain.DeadLetter, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := eventFromMessage(msg)
		if err != nil {
			continue
		}
		dl := domain.DeadLetter{Event: ev}
		if reason, ok := msg.Values["dead_letter_reason"].(string); ok {
			dl.Reason = reason
		}
		if raw, ok := msg.Values["failed_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				dl.FailedAt = ts
			}
		}
		out = append(out, dl)
	}
	return out, nil
}

func eventToValues(ev domain.Event) map[string]any {
	return map[string]any{
		"event_id":       ev.EventID,
		"correlation_id": ev.CorrelationID,
		"raw_text":       ev.RawText,
		"technician_id":  ev.TechnicianID,
		"received_at":    ev.ReceivedAt.Format(time.RFC3339Nano),
	}
}

func eventFromMessage(msg redis.XMessage) (domain.Event, error) {
	ev := domain.Event{}

	var ok bool
	if ev.EventID, ok = msg.Values["event_id"].(string); !ok || ev.EventID == "" {
		return domain.Event{}, errors.New("entry missing event_id")
	}
	if ev.TechnicianID, ok = msg.Values["technician_id"].(string); !ok || ev.TechnicianID == "" {
		return domain.Event{}, errors.New("entry missing technician_id")
	}
	ev.CorrelationID, _ = msg.Values["correlation_id"].(string)
	ev.RawText, _ = msg.Values["raw_text"].(string)

	if raw, ok := msg.Values["received_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ev.ReceivedAt = ts
		}
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	return ev, nil
}
