package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	dbcontracts "foodtracker/contracts/db"
	"foodtracker/internal/model"
	"foodtracker/pkg/logger"
	"foodtracker/pkg/metrics"
	"foodtracker/pkg/util"
)

// Store 持久化通知记录。*repository.NotificationRepository 实现该接口
type Store interface {
	InsertRecord(ctx context.Context, rec *dbcontracts.NotificationRecord) error
}

// Entry is the outcome of one delivery attempt.
type Entry struct {
	CycleID   string
	UserID    int64
	ProductID *int64
	Channel   model.Channel
	Message   string
	Succeeded bool
}

type Recorder struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger

	// 同一周期内多个 goroutine 共享一个 Recorder，写入逐条串行
	mu sync.Mutex
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// Record 仅在投递成功时写入一条记录；失败的投递不留痕迹，下个周期会重新尝试。
// 返回是否写入了记录。
func (r *Recorder) Record(ctx context.Context, e Entry) (bool, error) {
	if !e.Succeeded {
		return false, nil
	}

	rec := &dbcontracts.NotificationRecord{
		UserID:           e.UserID,
		ProductID:        e.ProductID,
		NotificationType: e.Channel.String(),
		Message:          e.Message,
		CycleID:          e.CycleID,
		SentAt:           r.now().UTC(),
		IsSent:           true,
	}

	r.mu.Lock()
	err := r.store.InsertRecord(ctx, rec)
	r.mu.Unlock()

	if err != nil {
		logger.WithTrace(ctx, r.logger).Error("Failed to record notification",
			zap.Int64("user_id", e.UserID),
			zap.String("channel", e.Channel.String()),
			zap.Error(err),
		)
		return false, fmt.Errorf("%w: %w", util.ErrDataAccess, err)
	}

	metrics.IncrementRecordsWritten(e.Channel.String())
	return true, nil
}
