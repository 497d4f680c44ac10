package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"foodtracker/pkg/trace"
)

// ErrNotHeld is returned by Release and Extend when the lease expired or was taken over.
var ErrNotHeld = errors.New("lease not held")

// 只有持有者 token 匹配时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 续期同样要求 token 匹配，避免延长别人的租约
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lease 基于 Redis SET NX PX 的互斥租约，保证多实例下同一时刻只有一个扫描周期
type Lease struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewLease(rdb *redis.Client, key string, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, key: key, ttl: ttl}
}

// TryAcquire returns a token when the lease was obtained, or "" when another holder has it.
func (l *Lease) TryAcquire(ctx context.Context) (string, error) {
	token := trace.GenerateTraceID()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release drops the lease if token still owns it.
func (l *Lease) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Extend resets the lease TTL while token still owns it.
func (l *Lease) Extend(ctx context.Context, token string) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lease) TTL() time.Duration { return l.ttl }
