package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Throttle rate-limits transfer invitation resends with a SetNX
// cooldown key per transfer. The key's TTL is the cooldown itself, so
// no cleanup pass is needed.
type Throttle struct {
	Client *redis.Client
}

func NewThrottle(client *redis.Client) *Throttle {
	return &Throttle{Client: client}
}

// Allow reports whether the action keyed by key may run now. When it
// may not, retryAfter says how long the caller has to wait.
func (t *Throttle) Allow(key string, cooldown time.Duration) (bool, time.Duration, error) {
	ctx := context.Background()
	ok, err := t.Client.SetNX(ctx, "resend_cooldown:"+key, time.Now().Unix(), cooldown).Result()
	if err != nil {
		return false, 0, err
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := t.Client.TTL(ctx, "resend_cooldown:"+key).Result()
	if err != nil || ttl < 0 {
		return false, cooldown, err
	}
	return false, ttl, nil
}

// Reset clears a cooldown, used when a transfer is cancelled so a new
// invitation is not blocked by the old one's timer.
func (t *Throttle) Reset(key string) error {
	return t.Client.Del(context.Background(), "resend_cooldown:"+key).Err()
}
