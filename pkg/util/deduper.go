package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 限制同一 (channel, user, product) 在同一天内只投递一次
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// FormatDedupKey formats the key for one delivery slot. productID 0 means "no product".
func FormatDedupKey(channel string, userID, productID int64, day time.Time) string {
	return fmt.Sprintf("dedup:%s:%d:%d:%s", channel, userID, productID, day.Format("2006-01-02"))
}

// AcquireOnce returns true if this is the FIRST delivery for the slot today,
// false if it's a duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, channel string, userID, productID int64, day time.Time) bool {
	key := FormatDedupKey(channel, userID, productID, day)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止投递，最坏情况是重复提醒
		d.logger.Warn("Redis dedup check failed, allowing delivery",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated reminder",
			zap.String("channel", channel),
			zap.Int64("user_id", userID),
			zap.Int64("product_id", productID),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// Release gives the slot back, used when the delivery it guarded failed.
func (d *Deduper) Release(ctx context.Context, channel string, userID, productID int64, day time.Time) {
	key := FormatDedupKey(channel, userID, productID, day)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
	}
}
