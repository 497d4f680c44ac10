package eligibility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"foodtracker/internal/model"
	"foodtracker/pkg/metrics"
	"foodtracker/pkg/util"
)

// CandidateSource reads (product, user, settings) rows from the inventory store.
// *repository.CandidateRepository implements it.
type CandidateSource interface {
	ListCandidates(ctx context.Context, today time.Time, defaults model.UserSettings) ([]model.Candidate, error)
}

type Selector struct {
	source   CandidateSource
	defaults model.UserSettings
	logger   *zap.Logger
}

func NewSelector(source CandidateSource, defaults model.UserSettings, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.NotificationDays < 0 {
		defaults.NotificationDays = model.DefaultNotificationDays
	}
	return &Selector{
		source:   source,
		defaults: defaults,
		logger:   logger,
	}
}

// Select 返回 today 这一天需要提醒的候选：产品与用户都活跃，
// 且 0 <= 距过期天数 <= 用户的 notification_days。结果为空时返回 nil。
func (s *Selector) Select(ctx context.Context, today time.Time) ([]model.Candidate, error) {
	today = model.Date(today)

	rows, err := s.source.ListCandidates(ctx, today, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrDataAccess, err)
	}

	var out []model.Candidate
	for _, c := range rows {
		// 存储适配器可能返回窗口外或非活跃的行，这里按同一规则再过滤一次
		if !c.Product.IsActive || !c.User.IsActive {
			continue
		}
		if c.Settings.NotificationDays < 0 {
			c.Settings.NotificationDays = s.defaults.NotificationDays
		}
		w := model.Window{Today: today, Days: c.Settings.NotificationDays}
		if !w.Contains(c.Product.ExpirationDate) {
			continue
		}
		out = append(out, c)
	}

	metrics.RecordCandidates(len(out))
	s.logger.Debug("Selected expiring products",
		zap.Time("today", today),
		zap.Int("rows", len(rows)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}
