package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"foodtracker/internal/model"
	"foodtracker/pkg/circuitbreaker"
	"foodtracker/pkg/config"
	"foodtracker/pkg/logger"
	"foodtracker/pkg/metrics"
	"foodtracker/pkg/util"
)

// Dialer 每次调用建立 SMTP 连接、认证、发送并关闭。*gomail.Dialer 实现该接口
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// DefaultSendTimeout bounds one SMTP attempt; gomail's Dialer has no deadline of its own.
const DefaultSendTimeout = 30 * time.Second

type EmailSender struct {
	dialer  Dialer
	from    string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// panicError 把 dialer goroutine 里的 panic 带回 Deliver
type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("smtp dialer panicked: %v", p.value) }

// NewEmailSender builds a sender that dials cfg's SMTP relay with STARTTLS.
func NewEmailSender(cfg config.SMTPConfig, cb circuitbreaker.Config, logger *zap.Logger) *EmailSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewEmailSenderWithDialer(d, cfg.From, circuitbreaker.NewCircuitBreaker(cb), logger)
}

func NewEmailSenderWithDialer(d Dialer, from string, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	return &EmailSender{
		dialer:  d,
		from:    from,
		timeout: DefaultSendTimeout,
		breaker: breaker,
		logger:  logger,
	}
}

// WithSendTimeout overrides DefaultSendTimeout.
func (s *EmailSender) WithSendTimeout(d time.Duration) *EmailSender {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *EmailSender) Channel() model.Channel { return model.ChannelEmail }

func (s *EmailSender) Deliver(ctx context.Context, to Recipient, subject, body string) (ok bool) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("channel", "email"),
		zap.Int64("user_id", to.UserID),
		zap.String("to", to.Email),
	)

	if to.Email == "" {
		log.Warn("Skipped email reminder, user has no email address")
		metrics.RecordDelivery("email", "skipped", 0)
		return false
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Email sender panicked", zap.Any("panic", r))
			ok = false
		}
		status := "success"
		if !ok {
			status = "failed"
		}
		metrics.RecordDelivery("email", status, time.Since(start))
	}()

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	err := s.breaker.Execute(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.send(ctx, m)
	})
	var pe panicError
	if errors.As(err, &pe) {
		log.Error("Email sender panicked", zap.Any("panic", pe.value))
		return false
	}
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.String("error_kind", util.ClassifyError(err))}
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
			fields = append(fields, zap.String("breaker", s.breaker.GetState().String()))
		}
		log.Error("Failed to send email reminder", fields...)
		return false
	}

	log.Info("Email reminder sent")
	return true
}

// send 在 goroutine 中拨号发送，超时或 ctx 取消时放弃等待；chan 有缓冲，goroutine 不会泄漏阻塞
func (s *EmailSender) send(ctx context.Context, m *gomail.Message) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- panicError{value: r}
			}
		}()
		done <- s.dialer.DialAndSend(m)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		var pe panicError
		if err != nil && !errors.As(err, &pe) {
			return fmt.Errorf("%w: %w", util.ErrTransientSend, err)
		}
		return err
	case <-timer.C:
		return fmt.Errorf("%w: smtp attempt timed out after %s", util.ErrTransientSend, s.timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", util.ErrTransientSend, ctx.Err())
	}
}
