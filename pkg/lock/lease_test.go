package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLease(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Lease) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewLease(rdb, "lock:expiry-scan", ttl)
}

func TestLease_MutualExclusion(t *testing.T) {
	_, lease := newLease(t, time.Minute)
	ctx := context.Background()

	token, err := lease.TryAcquire(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := lease.TryAcquire(ctx)
	require.NoError(t, err)
	assert.Empty(t, second, "second holder must not get the lease")

	require.NoError(t, lease.Release(ctx, token))

	third, err := lease.TryAcquire(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestLease_ReleaseWithForeignToken(t *testing.T) {
	_, lease := newLease(t, time.Minute)
	ctx := context.Background()

	token, err := lease.TryAcquire(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, lease.Release(ctx, "someone-else"), ErrNotHeld)
	require.NoError(t, lease.Release(ctx, token))
}

func TestLease_ExpiresAfterTTL(t *testing.T) {
	mr, lease := newLease(t, time.Second)
	ctx := context.Background()

	token, err := lease.TryAcquire(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	mr.FastForward(2 * time.Second)

	next, err := lease.TryAcquire(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, next)
	assert.ErrorIs(t, lease.Release(ctx, token), ErrNotHeld)
}

func TestLease_ExtendKeepsItAlive(t *testing.T) {
	mr, lease := newLease(t, time.Minute)
	ctx := context.Background()

	token, err := lease.TryAcquire(ctx)
	require.NoError(t, err)

	// 每 40s 续期一次，累计 120s 仍未过期
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Second)
		require.NoError(t, lease.Extend(ctx, token))
	}
	assert.True(t, mr.Exists("lock:expiry-scan"))
	assert.Equal(t, time.Minute, mr.TTL("lock:expiry-scan"))

	other, err := lease.TryAcquire(ctx)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLease_ExtendAfterExpiryOrTakeover(t *testing.T) {
	mr, lease := newLease(t, time.Second)
	ctx := context.Background()

	token, err := lease.TryAcquire(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, lease.Extend(ctx, "someone-else"), ErrNotHeld)

	mr.FastForward(2 * time.Second)
	assert.ErrorIs(t, lease.Extend(ctx, token), ErrNotHeld)

	// 过期后的续期不能复活租约
	assert.False(t, mr.Exists("lock:expiry-scan"))
}

func TestLease_RedisDown(t *testing.T) {
	mr, lease := newLease(t, time.Minute)
	mr.Close()

	_, err := lease.TryAcquire(context.Background())
	assert.Error(t, err)
}
