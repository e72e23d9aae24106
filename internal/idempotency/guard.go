package idempotency

import (
	"context"
	"time"

	"backend/pkg/apperror"

	"github.com/redis/go-redis/v9"
)

// Guard deduplicates gateway callback deliveries. Providers retry webhooks
// aggressively, so the first delivery of an event id claims a redis key and
// every replay within the TTL is dropped before it reaches reconciliation.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultTTL = 24 * time.Hour

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Guard{client: client, ttl: ttl}
}

func key(provider, eventID string) string {
	return "callback:" + provider + ":" + eventID
}

// CheckAndMark atomically claims the event id. It returns true when this is
// the first delivery, false when the event was already processed.
func (g *Guard) CheckAndMark(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, key(provider, eventID), time.Now().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, apperror.Wrap(apperror.KindInternal, err, "idempotency check")
	}
	return ok, nil
}

// Release frees the claim so a retry can be processed again. Called when
// reconciliation fails after the mark; losing the release only delays the
// retry until the TTL expires.
func (g *Guard) Release(ctx context.Context, provider, eventID string) {
	g.client.Del(ctx, key(provider, eventID))
}
