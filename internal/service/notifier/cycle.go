package notifier

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"foodtracker/internal/model"
	"foodtracker/internal/service/channel"
	"foodtracker/internal/service/composer"
	"foodtracker/internal/service/recorder"
	"foodtracker/pkg/logger"
	"foodtracker/pkg/metrics"
	"foodtracker/pkg/otel"
	"foodtracker/pkg/trace"
	"foodtracker/pkg/util"
)

// CycleReport summarises one scan cycle.
type CycleReport struct {
	CycleID    string
	Today      time.Time
	Candidates int
	Delivered  int
	Failed     int
	Recorded   int
	Skipped    int
}

type counters struct {
	delivered, failed, recorded, skipped atomic.Int64
}

// RunCycle 执行一次扫描周期。
// 只有筛选失败会中止整个周期并返回错误；单个候选的问题只影响该候选。
func (n *Notifier) RunCycle(ctx context.Context) (CycleReport, error) {
	cycleID := trace.GenerateTraceID()
	if trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, cycleID)
	}
	ctx, span := otel.StartSpan(ctx, "notifier.cycle")
	defer span.End()

	log := logger.WithTrace(ctx, n.logger).With(zap.String("cycle_id", cycleID))
	report := CycleReport{CycleID: cycleID, Today: n.today()}
	span.SetAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.String("cycle.today", report.Today.Format("2006-01-02")),
	)

	candidates, err := n.selector.Select(ctx, report.Today)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("select candidates: %w", err)
	}
	report.Candidates = len(candidates)

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n.processCandidate(gctx, log, cycleID, report.Today, cand, &c)
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(c.delivered.Load())
	report.Failed = int(c.failed.Load())
	report.Recorded = int(c.recorded.Load())
	report.Skipped = int(c.skipped.Load())

	span.SetAttributes(
		attribute.Int("cycle.candidates", report.Candidates),
		attribute.Int("cycle.recorded", report.Recorded),
	)
	log.Info(fmt.Sprintf("Processed %d expiration notifications", report.Candidates),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
		zap.Int("recorded", report.Recorded),
		zap.Int("skipped", report.Skipped),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("cycle interrupted: %w", err)
	}
	return report, nil
}

func (n *Notifier) processCandidate(ctx context.Context, log *zap.Logger, cycleID string, today time.Time, cand model.Candidate, c *counters) {
	log = log.With(
		zap.Int64("user_id", cand.User.ID),
		zap.Int64("product_id", cand.Product.ID),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Candidate processing panicked", zap.Any("panic", r))
			c.skipped.Add(1)
		}
	}()

	s := cand.Settings
	if !s.EmailEnabled && !s.PushEnabled {
		metrics.IncrementCandidateSkipped("disabled")
		c.skipped.Add(1)
		return
	}

	msg, err := composer.Compose(cand, today)
	if err != nil {
		log.Warn("Skipped malformed candidate", zap.Error(err), zap.String("error_kind", util.ClassifyError(err)))
		metrics.IncrementCandidateSkipped("composer_fault")
		c.skipped.Add(1)
		return
	}

	to := channel.Recipient{UserID: cand.User.ID, Email: cand.User.Email}
	productID := cand.Product.ID

	var emailOK, pushOK bool
	if s.EmailEnabled && n.email != nil {
		body, err := composer.RenderEmail(msg.Payload)
		if err != nil {
			log.Warn("Skipped email for candidate", zap.Error(err))
			metrics.IncrementCandidateSkipped("composer_fault")
		} else {
			emailOK = n.deliver(ctx, log, n.email, cand, today, to, n.emailSubject, body, c)
			n.record(ctx, log, cycleID, cand, model.ChannelEmail, msg.Text, emailOK, productID, c)
		}
	}

	if s.PushEnabled && n.push != nil {
		pushOK = n.deliver(ctx, log, n.push, cand, today, to, n.pushTitle, msg.Text, c)
		n.record(ctx, log, cycleID, cand, model.ChannelPush, msg.Text, pushOK, productID, c)
	}

	// 两个渠道都开启且都成功时，额外写一条 both 记录
	if s.EmailEnabled && s.PushEnabled {
		n.record(ctx, log, cycleID, cand, model.ChannelBoth, msg.Text, emailOK && pushOK, productID, c)
	}
}

func (n *Notifier) deliver(ctx context.Context, log *zap.Logger, s channel.Sender, cand model.Candidate, today time.Time, to channel.Recipient, subject, body string, c *counters) bool {
	ch := s.Channel().String()
	if n.dedup != nil && !n.dedup.AcquireOnce(ctx, ch, cand.User.ID, cand.Product.ID, today) {
		metrics.IncrementCandidateSkipped("duplicate")
		return false
	}

	if s.Deliver(ctx, to, subject, body) {
		c.delivered.Add(1)
		if n.streak != nil {
			n.streak.RecordSuccess(ctx, ch, cand.User.ID, cand.Product.ID)
		}
		return true
	}

	c.failed.Add(1)
	log.Debug("Delivery failed, will retry next cycle", zap.String("channel", ch))
	if n.streak != nil {
		streak := n.streak.RecordFailure(ctx, ch, cand.User.ID, cand.Product.ID)
		if n.streakWarnAt > 0 && streak >= n.streakWarnAt {
			log.Warn("Reminder keeps failing across cycles",
				zap.String("channel", ch),
				zap.Int64("consecutive_failures", streak),
			)
		}
	}
	if n.dedup != nil {
		n.dedup.Release(ctx, ch, cand.User.ID, cand.Product.ID, today)
	}
	return false
}

func (n *Notifier) record(ctx context.Context, log *zap.Logger, cycleID string, cand model.Candidate, ch model.Channel, text string, ok bool, productID int64, c *counters) {
	written, err := n.recorder.Record(ctx, recorder.Entry{
		CycleID:   cycleID,
		UserID:    cand.User.ID,
		ProductID: &productID,
		Channel:   ch,
		Message:   text,
		Succeeded: ok,
	})
	if err != nil {
		log.Error("Failed to record delivery", zap.String("channel", ch.String()), zap.Error(err))
		return
	}
	if written {
		c.recorded.Add(1)
	}
}
