package redis

import (
	"context"
	"fmt"
	"time"

	"fieldDispatch/business/pipeline"

	"github.com/redis/go-redis/v9"
)

const (
	markerInFlight = "in_flight"
	markerDone     = "done"

	// done markers outlive the broker's redelivery horizon by a wide margin
	doneTTL = 7 * 24 * time.Hour
)

var _ pipeline.IdempotencyGuard = (*IdempotencyGuard)(nil)

// IdempotencyGuard is the fast, first-line duplicate filter in front of the
// durable processed_events check. SETNX makes the reserve atomic across
// workers; the in-flight marker expires with the broker lease so a crashed
// worker never wedges its event.
type IdempotencyGuard struct {
	client      *redis.Client
	inFlightTTL time.Duration
}

func NewIdempotencyGuard(client *redis.Client, inFlightTTL time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		client:      client,
		inFlightTTL: inFlightTTL,
	}
}

func eventKey(eventID string) string {
	return fmt.Sprintf("dispatch:event:%s", eventID)
}

func (g *IdempotencyGuard) CheckAndReserve(ctx context.Context, eventID string) (pipeline.ReservationState, error) {
	key := eventKey(eventID)

	ok, err := g.client.SetNX(ctx, key, markerInFlight, g.inFlightTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to reserve event %s: %w", eventID, err)
	}
	if ok {
		return pipeline.ReservationFresh, nil
	}

	val, err := g.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// the marker expired between SetNX and Get; treat as contended and
		// let redelivery retry
		return pipeline.ReservationInFlight, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read marker for event %s: %w", eventID, err)
	}

	if val == markerDone {
		return pipeline.ReservationDuplicate, nil
	}
	return pipeline.ReservationInFlight, nil
}

func (g *IdempotencyGuard) MarkDone(ctx context.Context, eventID string) error {
	if err := g.client.Set(ctx, eventKey(eventID), markerDone, doneTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark event %s done: %w", eventID, err)
	}
	return nil
}

func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if err := g.client.Del(ctx, eventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", eventID, err)
	}
	return nil
}
