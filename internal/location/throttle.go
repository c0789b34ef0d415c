package location

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// DefaultThrottleWindow is the minimum spacing between persisted samples of one user.
const DefaultThrottleWindow = 15 * time.Second

// Throttle decides whether a persistence attempt may start now. A granted
// attempt opens a new window whether or not the write later succeeds.
type Throttle interface {
	Allow(ctx context.Context, userID string, now time.Time) (bool, error)
}

// LocalThrottle keeps per-user windows in process memory.
type LocalThrottle struct {
	window time.Duration
	last   cmap.ConcurrentMap[string, time.Time]
}

// NewLocalThrottle creates a LocalThrottle.
func NewLocalThrottle(window time.Duration) *LocalThrottle {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &LocalThrottle{window: window, last: cmap.New[time.Time]()}
}

// Allow grants at most one attempt per window per user.
func (t *LocalThrottle) Allow(_ context.Context, userID string, now time.Time) (bool, error) {
	allowed := false
	t.last.Upsert(userID, now, func(exist bool, prev, next time.Time) time.Time {
		if exist && next.Sub(prev) < t.window {
			return prev
		}
		allowed = true
		return next
	})
	return allowed, nil
}

// RedisThrottle shares windows across API replicas with SET NX PX.
type RedisThrottle struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisThrottle creates a RedisThrottle.
func NewRedisThrottle(client *redis.Client, window time.Duration) *RedisThrottle {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &RedisThrottle{client: client, window: window, prefix: "tss:location-throttle:"}
}

// Allow grants an attempt when no window key exists for the user.
func (t *RedisThrottle) Allow(ctx context.Context, userID string, now time.Time) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+userID, strconv.FormatInt(now.UnixMilli(), 10), t.window).Result()
	if err != nil {
		return false, fmt.Errorf("location throttle: %w", err)
	}
	return ok, nil
}
