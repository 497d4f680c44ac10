package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FailureStreak 统计同一 (channel, user, product) 连续失败的扫描周期数，成功后清零
type FailureStreak struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewFailureStreak(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *FailureStreak {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureStreak{rdb: rdb, ttl: ttl, logger: logger}
}

func FormatStreakKey(channel string, userID, productID int64) string {
	return fmt.Sprintf("streak:%s:%d:%d", channel, userID, productID)
}

// RecordFailure increments the streak and returns its new length. 0 means Redis was unavailable.
func (s *FailureStreak) RecordFailure(ctx context.Context, channel string, userID, productID int64) int64 {
	key := FormatStreakKey(channel, userID, productID)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("Failed to update failure streak", zap.String("key", key), zap.Error(err))
		return 0
	}
	return incr.Val()
}

// RecordSuccess ends the streak.
func (s *FailureStreak) RecordSuccess(ctx context.Context, channel string, userID, productID int64) {
	key := FormatStreakKey(channel, userID, productID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("Failed to reset failure streak", zap.String("key", key), zap.Error(err))
	}
}

// Len returns the current streak length.
func (s *FailureStreak) Len(ctx context.Context, channel string, userID, productID int64) (int64, error) {
	n, err := s.rdb.Get(ctx, FormatStreakKey(channel, userID, productID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
