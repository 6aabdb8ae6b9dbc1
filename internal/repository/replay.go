package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// replayTTL is how long a callback event id is remembered. Providers retry
// for at most a few days; after that a redelivery still hits the Postgres
// status guard, so expiry here costs nothing in correctness.
const replayTTL = 72 * time.Hour

// ReplayCache is a fast-path deduplicator for provider callbacks, keyed by
// (provider, event id) in Redis. It is advisory only: the conditional status
// update in Postgres stays authoritative, so losing Redis never regresses a
// purchase.
type ReplayCache struct {
	client *redis.Client
}

func NewReplayCache(client *redis.Client) *ReplayCache {
	return &ReplayCache{client: client}
}

// Seen marks the event id and reports whether it was already recorded.
// Errors are returned so the caller can log them, but a caller treating an
// error as "not seen" is always safe.
func (r *ReplayCache) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	if r == nil || r.client == nil || eventID == "" {
		return false, nil
	}
	key := fmt.Sprintf("callback:%s:%s", provider, eventID)
	fresh, err := r.client.SetNX(ctx, key, 1, replayTTL).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}
