package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"foodtracker/pkg/metrics"
	"foodtracker/pkg/util"
)

var (
	// ErrCycleInProgress 本进程内已有扫描周期在运行
	ErrCycleInProgress = errors.New("scan cycle already in progress")
	// ErrLeaseHeld 其他实例持有扫描租约
	ErrLeaseHeld = errors.New("scan lease held by another instance")
	// ErrLeaseLost 周期运行中续期失败，周期被中止
	ErrLeaseLost = errors.New("scan lease lost during cycle")
)

type State int32

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// CycleFunc runs one scan cycle.
type CycleFunc func(ctx context.Context) error

// Locker 跨进程互斥。*lock.Lease 实现该接口；token 为空表示未获得
type Locker interface {
	TryAcquire(ctx context.Context) (string, error)
	Release(ctx context.Context, token string) error
	Extend(ctx context.Context, token string) error
}

type Loop struct {
	cycle      CycleFunc
	interval   time.Duration
	runOnStart bool
	locker     Locker
	renewEvery time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	state atomic.Int32
}

func NewLoop(cycle CycleFunc, interval time.Duration, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cycle:      cycle,
		interval:   interval,
		runOnStart: true,
		logger:     logger,
	}
}

// WithLocker makes every cycle take the cross-process lease first and
// extend it every renewEvery while the cycle runs. renewEvery <= 0 disables renewal.
func (l *Loop) WithLocker(locker Locker, renewEvery time.Duration) *Loop {
	l.locker = locker
	l.renewEvery = renewEvery
	return l
}

func (l *Loop) WithRunOnStart(v bool) *Loop {
	l.runOnStart = v
	return l
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run 启动时先跑一次，之后每个 interval 跑一次，直到 ctx 取消。
// 周期内的错误只记录日志，不会终止循环。
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Scheduler loop started", zap.Duration("interval", l.interval))

	if l.runOnStart {
		l.tick(ctx)
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
			// 周期超时期间堆积的 tick 直接丢弃
			select {
			case <-ticker.C:
				l.logger.Warn("Scan cycle overran interval, skipped a tick")
			default:
			}
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := l.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrLeaseHeld), errors.Is(err, ErrCycleInProgress):
		l.logger.Info("Scan cycle skipped", zap.String("reason", err.Error()))
	default:
		retryable, kind := util.IsRetryableError(err)
		l.logger.Error("Scan cycle failed",
			zap.Error(err),
			zap.String("error_kind", kind),
			zap.Bool("retry_next_tick", retryable),
		)
	}
}

// RunOnce runs a single cycle now. It never runs two cycles at once:
// a concurrent call gets ErrCycleInProgress, and ErrLeaseHeld when another instance is scanning.
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	if !l.mu.TryLock() {
		metrics.RecordScanCycle("skipped", 0)
		return ErrCycleInProgress
	}
	defer l.mu.Unlock()

	cycleCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if l.locker != nil {
		token, lerr := l.locker.TryAcquire(ctx)
		if lerr != nil {
			metrics.RecordScanCycle("failed", 0)
			return fmt.Errorf("acquire scan lease: %w", lerr)
		}
		if token == "" {
			metrics.RecordScanCycle("skipped", 0)
			return ErrLeaseHeld
		}
		defer func() {
			// ctx 可能已取消，租约仍需释放
			if rerr := l.locker.Release(context.WithoutCancel(ctx), token); rerr != nil {
				l.logger.Warn("Failed to release scan lease", zap.Error(rerr))
			}
		}()
		// 续期 goroutine 必须在 Release 之前退出
		stopRenew := l.renew(cycleCtx, cancel, token)
		defer stopRenew()
	}

	l.state.Store(int32(Scanning))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan cycle panicked: %v", r)
		}
		l.state.Store(int32(Idle))

		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		metrics.RecordScanCycle(outcome, time.Since(start))
	}()

	err = l.cycle(cycleCtx)
	if errors.Is(context.Cause(cycleCtx), ErrLeaseLost) {
		if err == nil {
			return ErrLeaseLost
		}
		return fmt.Errorf("%w: %w", ErrLeaseLost, err)
	}
	return err
}

// renew 定期续期租约；续期失败时以 ErrLeaseLost 取消周期 ctx
func (l *Loop) renew(ctx context.Context, cancel context.CancelCauseFunc, token string) (stop func()) {
	if l.renewEvery <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.locker.Extend(ctx, token); err != nil {
					if ctx.Err() != nil {
						return
					}
					l.logger.Error("Failed to renew scan lease, aborting cycle", zap.Error(err))
					cancel(fmt.Errorf("%w: %w", ErrLeaseLost, err))
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
