package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"foodtracker/internal/scheduler"
	"foodtracker/pkg/logger"
	"foodtracker/pkg/otel"
)

// Check 是 /readyz 的一个依赖探测
type Check func(ctx context.Context) error

// CycleRunner is satisfied by *scheduler.Loop.
type CycleRunner interface {
	RunOnce(ctx context.Context) error
	State() scheduler.State
}

// Replayer is satisfied by *outbox.Repository.
type Replayer interface {
	ReplayFailed(ctx context.Context, limit int) (int64, error)
}

type Deps struct {
	Logger   *zap.Logger
	Checks   map[string]Check
	Runner   CycleRunner
	Replayer Replayer
	// EnableScanTrigger registers POST /internal/scan. The route has no auth, so it is off unless set.
	EnableScanTrigger bool
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if d.Runner != nil {
			body["scheduler"] = d.Runner.State().String()
		}
		c.JSON(http.StatusOK, body)
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range d.Checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal")
	if d.Runner != nil && d.EnableScanTrigger {
		internal.POST("/scan", scanHandler(d.Runner, d.Logger))
	}
	if d.Replayer != nil {
		internal.POST("/outbox/replay", replayHandler(d.Replayer, d.Logger))
	}

	return &Router{Engine: r}
}

func scanHandler(runner CycleRunner, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 客户端断开不应打断正在进行的扫描
		ctx := context.WithoutCancel(c.Request.Context())
		err := runner.RunOnce(ctx)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "completed"})
		case errors.Is(err, scheduler.ErrCycleInProgress), errors.Is(err, scheduler.ErrLeaseHeld):
			c.JSON(http.StatusConflict, gin.H{"status": "busy", "error": err.Error()})
		default:
			logger.WithTrace(ctx, log).Error("Manual scan failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": err.Error()})
		}
	}
}

func replayHandler(replayer Replayer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		n, err := replayer.ReplayFailed(c.Request.Context(), limit)
		if err != nil {
			logger.WithTrace(c.Request.Context(), log).Error("Outbox replay failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"replayed": n})
	}
}
