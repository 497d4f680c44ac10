package channel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "foodtracker/contracts/mq"
	"foodtracker/internal/model"
	"foodtracker/pkg/logger"
	"foodtracker/pkg/metrics"
	"foodtracker/pkg/mq"
	"foodtracker/pkg/trace"
	"foodtracker/pkg/util"
)

// TokenSource 返回用户的设备 token。*repository.DeviceTokenRepository 实现该接口
type TokenSource interface {
	ListTokens(ctx context.Context, userID int64) ([]string, error)
}

// PushTransport hands a push message to whatever actually talks to FCM/APNs.
type PushTransport interface {
	SendToTokens(ctx context.Context, userID int64, tokens []string, title, body string) error
}

type PushSender struct {
	tokens    TokenSource
	transport PushTransport
	// 用户没有设备 token 时是否视为投递成功
	succeedOnEmpty bool
	logger         *zap.Logger
}

func NewPushSender(tokens TokenSource, transport PushTransport, succeedOnEmpty bool, logger *zap.Logger) *PushSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushSender{
		tokens:         tokens,
		transport:      transport,
		succeedOnEmpty: succeedOnEmpty,
		logger:         logger,
	}
}

func (s *PushSender) Channel() model.Channel { return model.ChannelPush }

func (s *PushSender) Deliver(ctx context.Context, to Recipient, title, body string) (ok bool) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("channel", "push"),
		zap.Int64("user_id", to.UserID),
	)

	start := time.Now()
	status := "failed"
	defer func() {
		if r := recover(); r != nil {
			log.Error("Push sender panicked", zap.Any("panic", r))
			ok = false
			status = "failed"
		}
		metrics.RecordDelivery("push", status, time.Since(start))
	}()

	tokens, err := s.tokens.ListTokens(ctx, to.UserID)
	if err != nil {
		log.Error("Failed to load device tokens", zap.Error(err))
		return false
	}

	if len(tokens) == 0 {
		status = "skipped"
		if s.succeedOnEmpty {
			log.Info("No device tokens, push treated as delivered")
			return true
		}
		log.Info("No device tokens, push skipped")
		return false
	}

	if err := s.transport.SendToTokens(ctx, to.UserID, tokens, title, body); err != nil {
		log.Error("Failed to send push reminder",
			zap.Int("tokens", len(tokens)),
			zap.Error(err),
			zap.String("error_kind", util.ClassifyError(err)),
		)
		return false
	}

	status = "success"
	log.Info("Push reminder sent", zap.Int("tokens", len(tokens)))
	return true
}

// Publisher is the subset of *mq.Publisher the push transport needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// MQPushTransport publishes push.requested for the downstream push gateway.
type MQPushTransport struct {
	publisher Publisher
}

func NewMQPushTransport(publisher Publisher) *MQPushTransport {
	return &MQPushTransport{publisher: publisher}
}

func (t *MQPushTransport) SendToTokens(ctx context.Context, userID int64, tokens []string, title, body string) error {
	payload := mqcontracts.PushRequestedPayload{
		UserID:      userID,
		Tokens:      tokens,
		Title:       title,
		Body:        body,
		TraceID:     trace.FromContext(ctx),
		RequestedAt: time.Now().UTC(),
	}
	if err := t.publisher.PublishWithContext(ctx, mq.RoutingKeyPushRequested, payload); err != nil {
		return fmt.Errorf("%w: %w", util.ErrTransientSend, err)
	}
	return nil
}
