package redis

import (
	"context"
	"encoding/json"
	"time"

	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
)

var _ repository.IntentCache = (*IntentCache)(nil)

// IntentCache is the session preservation cache on Redis. Entries expire
// server-side at the intent TTL; the timestamp check below covers clock skew
// and entries written with a longer TTL by older builds.
type IntentCache struct {
	client RedisClient
	now    func() time.Time
}

func NewIntentCache(client RedisClient) *IntentCache {
	return &IntentCache{client: client, now: time.Now}
}

func (c *IntentCache) key(state string) string {
	return "checkout_intent:" + state
}

// Save overwrites any prior snapshot under the same state.
func (c *IntentCache) Save(ctx context.Context, state string, intent *model.CheckoutIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(state), data, model.IntentTTL)
}

// Restore returns (nil, nil) when the entry is absent, unparsable or stale.
// A stale or unparsable entry is also removed. Restore does not consume the
// snapshot; callers Clear after acting on it.
func (c *IntentCache) Restore(ctx context.Context, state string) (*model.CheckoutIntent, error) {
	data, err := c.client.Get(ctx, c.key(state))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}

	var intent model.CheckoutIntent
	if err := json.Unmarshal([]byte(data), &intent); err != nil {
		_ = c.client.Del(ctx, c.key(state))
		return nil, nil
	}
	if intent.Expired(c.now()) {
		_ = c.client.Del(ctx, c.key(state))
		return nil, nil
	}
	return &intent, nil
}

func (c *IntentCache) Clear(ctx context.Context, state string) error {
	return c.client.Del(ctx, c.key(state))
}
