package signalgen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup is the optional distributed DedupBackend (SPEC_FULL.md §6),
// used when several processes must share one cooldown table. It encodes
// the per-symbol-per-type cooldown as a single key with a TTL, using
// SET NX so the check-and-record pair stays atomic across processes.
type RedisDedup struct {
	client *redis.Client
	prefix string
}

// NewRedisDedup wraps an already-constructed redis client.
func NewRedisDedup(client *redis.Client, keyPrefix string) *RedisDedup {
	if keyPrefix == "" {
		keyPrefix = "confluence:dedup:"
	}
	return &RedisDedup{client: client, prefix: keyPrefix}
}

// Suppressed implements DedupBackend against Redis. A type flip is detected
// by storing the last type as the key's value: if the stored value differs
// from t, the key is overwritten (bypassing cooldown) rather than treated
// as a hit.
func (r *RedisDedup) Suppressed(symbol string, t SignalType, cooldown time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("%s%s", r.prefix, symbol)

	created, err := r.client.SetNX(ctx, key, string(t), cooldown).Result()
	if err != nil {
		// Fail open rather than silently suppressing every signal when the
		// backend is unavailable.
		return false
	}
	if created {
		return false
	}

	existing, err := r.client.Get(ctx, key).Result()
	if err == nil && existing == string(t) {
		return true
	}

	// A type flip (or the key expired between the two calls): record the new
	// type and restart the cooldown.
	_ = r.client.Set(ctx, key, string(t), cooldown).Err()
	return false
}
