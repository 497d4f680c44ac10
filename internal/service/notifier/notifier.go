package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"foodtracker/internal/model"
	"foodtracker/internal/service/channel"
	"foodtracker/internal/service/recorder"
)

// CandidateSelector is satisfied by *eligibility.Selector.
type CandidateSelector interface {
	Select(ctx context.Context, today time.Time) ([]model.Candidate, error)
}

// DeliveryRecorder is satisfied by *recorder.Recorder.
type DeliveryRecorder interface {
	Record(ctx context.Context, e recorder.Entry) (bool, error)
}

// Deduper 限制同一 (channel, user, product) 每天只投递一次。*util.Deduper 实现该接口
type Deduper interface {
	AcquireOnce(ctx context.Context, channel string, userID, productID int64, day time.Time) bool
	Release(ctx context.Context, channel string, userID, productID int64, day time.Time)
}

// FailureTracker 记录跨周期的连续失败次数。*util.FailureStreak 实现该接口
type FailureTracker interface {
	RecordFailure(ctx context.Context, channel string, userID, productID int64) int64
	RecordSuccess(ctx context.Context, channel string, userID, productID int64)
}

// Notifier 执行一次完整的扫描周期：筛选 -> 组装消息 -> 各渠道投递 -> 记录
type Notifier struct {
	selector CandidateSelector
	recorder DeliveryRecorder
	email    channel.Sender
	push     channel.Sender
	dedup    Deduper
	streak   FailureTracker

	// 连续失败达到该次数后升级为 Warn 日志
	streakWarnAt int64

	emailSubject string
	pushTitle    string
	concurrency  int
	location     *time.Location
	now          func() time.Time

	logger *zap.Logger
}

func NewNotifier(selector CandidateSelector, rec DeliveryRecorder, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		selector:     selector,
		recorder:     rec,
		emailSubject: "Food Expiration Reminder",
		pushTitle:    "Expiration Reminder",
		concurrency:  4,
		location:     time.UTC,
		now:          time.Now,
		logger:       logger,
	}
}

// WithEmail enables the email channel. Without it email-enabled users get no email.
func (n *Notifier) WithEmail(s channel.Sender, subject string) *Notifier {
	n.email = s
	if subject != "" {
		n.emailSubject = subject
	}
	return n
}

func (n *Notifier) WithPush(s channel.Sender, title string) *Notifier {
	n.push = s
	if title != "" {
		n.pushTitle = title
	}
	return n
}

func (n *Notifier) WithDeduper(d Deduper) *Notifier {
	n.dedup = d
	return n
}

func (n *Notifier) WithFailureTracker(t FailureTracker, warnAt int) *Notifier {
	n.streak = t
	n.streakWarnAt = int64(warnAt)
	return n
}

func (n *Notifier) WithConcurrency(c int) *Notifier {
	if c > 0 {
		n.concurrency = c
	}
	return n
}

// WithLocation sets the zone whose calendar date counts as "today".
func (n *Notifier) WithLocation(loc *time.Location) *Notifier {
	if loc != nil {
		n.location = loc
	}
	return n
}

func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

func (n *Notifier) today() time.Time {
	return model.Date(n.now().In(n.location))
}
