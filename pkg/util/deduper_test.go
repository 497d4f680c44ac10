package util

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDeduper_AcquireOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	d := NewDeduper(rdb, 24*time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, d.AcquireOnce(ctx, "email", 1, 10, day))
	assert.False(t, d.AcquireOnce(ctx, "email", 1, 10, day))

	// other channel, product and day are independent slots
	assert.True(t, d.AcquireOnce(ctx, "push", 1, 10, day))
	assert.True(t, d.AcquireOnce(ctx, "email", 1, 11, day))
	assert.True(t, d.AcquireOnce(ctx, "email", 1, 10, day.AddDate(0, 0, 1)))
}

func TestDeduper_ReleaseAllowsRetry(t *testing.T) {
	_, rdb := newTestRedis(t)
	d := NewDeduper(rdb, 24*time.Hour, nil)
	ctx := context.Background()
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, d.AcquireOnce(ctx, "email", 1, 10, day))
	d.Release(ctx, "email", 1, 10, day)
	assert.True(t, d.AcquireOnce(ctx, "email", 1, 10, day))
}

func TestDeduper_FailsOpenWhenRedisIsDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	d := NewDeduper(rdb, time.Hour, zaptest.NewLogger(t))
	mr.Close()

	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	assert.True(t, d.AcquireOnce(context.Background(), "email", 1, 10, day))
}

func TestFormatDedupKey(t *testing.T) {
	day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "dedup:push:7:0:2026-01-02", FormatDedupKey("push", 7, 0, day))
}
