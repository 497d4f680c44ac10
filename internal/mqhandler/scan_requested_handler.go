package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "foodtracker/contracts/mq"
	"foodtracker/internal/scheduler"
	"foodtracker/pkg/logger"
)

// CycleRunner is satisfied by *scheduler.Loop.
type CycleRunner interface {
	RunOnce(ctx context.Context) error
}

// ScanRequestedHandler 处理 expiry.scan.requested，让外部调度器按需触发一次扫描
type ScanRequestedHandler struct {
	runner CycleRunner
	logger *zap.Logger
}

func NewScanRequestedHandler(runner CycleRunner, logger *zap.Logger) *ScanRequestedHandler {
	return &ScanRequestedHandler{
		runner: runner,
		logger: logger,
	}
}

func (h *ScanRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ScanRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal ScanRequestedPayload", zap.Error(err))
		return fmt.Errorf("invalid scan request: %w", err)
	}

	log := logger.WithTrace(ctx, h.logger)
	log.Info("Handling expiry.scan.requested event",
		zap.String("requested_by", p.RequestedBy),
		zap.Time("requested_at", p.RequestedAt),
	)

	err := h.runner.RunOnce(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scheduler.ErrCycleInProgress), errors.Is(err, scheduler.ErrLeaseHeld):
		// 已经有周期在跑，本次请求视为已满足
		log.Info("Scan request coalesced with running cycle", zap.String("reason", err.Error()))
		return nil
	default:
		return fmt.Errorf("requested scan failed: %w", err)
	}
}
