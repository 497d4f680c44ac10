package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureStreak(t *testing.T) {
	mr, rdb := newTestRedis(t)

	s := NewFailureStreak(rdb, time.Hour, nil)
	ctx := context.Background()

	assert.Equal(t, int64(1), s.RecordFailure(ctx, "email", 1, 7))
	assert.Equal(t, int64(2), s.RecordFailure(ctx, "email", 1, 7))
	assert.Equal(t, int64(1), s.RecordFailure(ctx, "push", 1, 7))
	assert.Equal(t, time.Hour, mr.TTL(FormatStreakKey("email", 1, 7)))

	s.RecordSuccess(ctx, "email", 1, 7)
	n, err := s.Len(ctx, "email", 1, 7)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Len(ctx, "push", 1, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFailureStreak_RedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	s := NewFailureStreak(rdb, time.Hour, nil)
	assert.Zero(t, s.RecordFailure(context.Background(), "email", 1, 7))
}
