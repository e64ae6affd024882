package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cooldownKeyPrefix = "cooldown:last_fired:"

// RedisCooldownTracker is a CooldownTracker backed by Redis. Unlike the
// in-memory tracker it survives process restarts, so a restart does not
// produce a duplicate notification.
//
// Keys carry a retention TTL purely for hygiene; it must be much larger
// than any cooldown window so it never affects firing decisions.
type RedisCooldownTracker struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewRedisCooldownTracker creates a Redis-backed cooldown tracker
func NewRedisCooldownTracker(client redis.Cmdable, retention time.Duration) *RedisCooldownTracker {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisCooldownTracker{
		client:    client,
		retention: retention,
	}
}

// LastFired returns the last-fired timestamp for an identity
func (t *RedisCooldownTracker) LastFired(ctx context.Context, identity string) (time.Time, bool, error) {
	val, err := t.client.Get(ctx, cooldownKeyPrefix+identity).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cooldown record: %w", err)
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt cooldown record for %s: %w", identity, err)
	}

	return time.Unix(0, nanos), true, nil
}

// RecordFired records the firing timestamp for an identity
func (t *RedisCooldownTracker) RecordFired(ctx context.Context, identity string, firedAt time.Time) error {
	val := strconv.FormatInt(firedAt.UnixNano(), 10)
	if err := t.client.Set(ctx, cooldownKeyPrefix+identity, val, t.retention).Err(); err != nil {
		return fmt.Errorf("failed to write cooldown record: %w", err)
	}
	return nil
}
