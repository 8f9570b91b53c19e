package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stratsim/internal/game"
)

// unlockLua deletes the lock only while it still carries the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Locker is a game.Locker shared by every process pointed at the same Redis.
// A holder that dies releases the game when ttl expires.
type Locker struct {
	c        *Client
	ttl      time.Duration
	retry    time.Duration
	unlockSc *redis.Script
}

func NewLocker(c *Client, ttl time.Duration) *Locker {
	return &Locker{
		c:        c,
		ttl:      ttl,
		retry:    25 * time.Millisecond,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Lock blocks until the key is acquired or ctx ends.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lk := l.c.key("lock", key)
	wait := l.retry
	for {
		ok, err := l.c.rdb.SetNX(ctx, lk, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, err
		}
		wait = min(wait*2, time.Second)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(unlockCtx, l.c.rdb, []string{lk}, token).Err()
		})
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ game.Locker = (*Locker)(nil)
