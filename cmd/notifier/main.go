package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"foodtracker/internal/config"
	"foodtracker/internal/httpserver"
	"foodtracker/internal/model"
	"foodtracker/internal/mqhandler"
	"foodtracker/internal/repository"
	"foodtracker/internal/scheduler"
	"foodtracker/internal/service/channel"
	"foodtracker/internal/service/eligibility"
	"foodtracker/internal/service/notifier"
	"foodtracker/internal/service/recorder"
	"foodtracker/pkg/db"
	"foodtracker/pkg/lock"
	"foodtracker/pkg/logger"
	"foodtracker/pkg/mq"
	"foodtracker/pkg/otel"
	"foodtracker/pkg/outbox"
	pkgredis "foodtracker/pkg/redis"
	"foodtracker/pkg/util"
)

const serviceName = "expiry-notifier"

func main() {
	once := flag.Bool("once", false, "run a single scan cycle and exit")
	flag.Parse()

	// 最后执行，保证其他 defer 先完成清理
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level).With(zap.String("service", serviceName))
	defer log.Sync()

	log.Info("Starting expiry-notifier...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Bool("once", *once),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// OpenTelemetry
	shutdownOTel, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOTel()

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis：扫描租约 + 可选去重
	rdb, err := pkgredis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	candidateRepo := repository.NewCandidateRepository(dbConn, log)
	tokenRepo := repository.NewDeviceTokenRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	outboxRepo := outbox.NewRepository(dbConn)

	// Pipeline
	selector := eligibility.NewSelector(candidateRepo, model.UserSettings{
		NotificationDays: cfg.Notification.DefaultDays,
		EmailEnabled:     cfg.Notification.EmailEnabled,
		PushEnabled:      cfg.Notification.PushEnabled,
	}, log)
	n := notifier.NewNotifier(selector, recorder.NewRecorder(notificationRepo, log), log).
		WithConcurrency(cfg.Notification.Concurrency).
		WithLocation(cfg.Location()).
		WithEmail(channel.NewEmailSender(cfg.SMTP, cfg.Notification.CircuitBreaker, log), cfg.Notification.EmailSubject).
		WithPush(channel.NewPushSender(
			tokenRepo,
			channel.NewMQPushTransport(publisher),
			cfg.Notification.Push.EmptyTokens == config.EmptyTokensSucceed,
			log,
		), cfg.Notification.PushTitle)
	if cfg.Notification.FailureStreak.WarnAfter > 0 {
		n.WithFailureTracker(util.NewFailureStreak(rdb, cfg.Notification.FailureStreak.TTL, log), cfg.Notification.FailureStreak.WarnAfter)
	}
	if cfg.Notification.Dedup.Enabled {
		n.WithDeduper(util.NewDeduper(rdb, cfg.Notification.Dedup.TTL, log))
	}

	loop := scheduler.NewLoop(func(ctx context.Context) error {
		_, err := n.RunCycle(ctx)
		return err
	}, cfg.Scheduler.Interval, log).
		WithRunOnStart(cfg.Scheduler.RunOnStart).
		WithLocker(lock.NewLease(rdb, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL), cfg.Scheduler.LockTTL/3)

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)

	if *once {
		if err := runOnce(ctx, loop, dispatcher, log); err != nil {
			log.Error("Scan cycle failed", zap.Error(err))
			exitCode = 1
		}
		return
	}

	go dispatcher.Start(ctx)

	// expiry.scan.requested 消费者
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "expiry.scan.requested.notifier", mq.RoutingKeyScanRequested, log)
	if err != nil {
		log.Fatal("Failed to init MQ consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(mqhandler.NewScanRequestedHandler(loop, log).Handle)
	go func() {
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("Scan request consumer stopped", zap.Error(err))
		}
	}()

	// Scheduler
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()

	// HTTP Server (health checks, metrics, ops)
	router := httpserver.NewRouter(httpserver.Deps{
		Logger: log,
		Checks: map[string]httpserver.Check{
			"db":    dbConn.Ping,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"mq": func(context.Context) error {
				if !publisher.IsConnected() {
					return errors.New("mq connection closed")
				}
				return nil
			},
		},
		Runner:            loop,
		Replayer:          outboxRepo,
		EnableScanTrigger: cfg.Server.ScanTriggerEnabled,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("expiry-notifier is fully initialized and running")

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down expiry-notifier gracefully...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	// 等待进行中的周期结束
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		log.Warn("Scan cycle did not finish before shutdown deadline")
	}

	log.Info("expiry-notifier shutdown complete")
}

// runOnce 供外部定时器调用：跑一个周期，把 outbox 中的事件尽量发出后退出
func runOnce(ctx context.Context, loop *scheduler.Loop, dispatcher *outbox.Dispatcher, log *zap.Logger) error {
	err := loop.RunOnce(ctx)
	if errors.Is(err, scheduler.ErrLeaseHeld) {
		log.Info("Another instance is scanning, nothing to do")
		err = nil
	}

	for i := 0; i < 10; i++ {
		if dispatcher.ProcessPendingEvents(ctx) == 0 {
			break
		}
	}
	return err
}
