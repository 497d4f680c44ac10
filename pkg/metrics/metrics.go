package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 扫描周期耗时（秒）
	ScanCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expiry_scan_cycle_duration_seconds",
			Help:    "Duration of one expiration scan cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"outcome"}, // outcome: ok, failed, skipped
	)

	// 每个周期的候选数量
	ScanCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "expiry_scan_candidates",
			Help:    "Number of eligible products found per scan cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// 渠道发送计数
	DeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_delivery_total",
			Help: "Total number of delivery attempts by channel and status",
		},
		[]string{"channel", "status"}, // status: success, failed, skipped
	)

	// 渠道发送延迟（毫秒）
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expiry_delivery_latency_ms",
			Help:    "Channel delivery latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"channel"},
	)

	// 写入的通知记录计数
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_notification_records_total",
			Help: "Total number of notification records written",
		},
		[]string{"channel"},
	)

	// 周期内跳过的候选（按原因）
	CandidatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_candidates_skipped_total",
			Help: "Candidates skipped inside a scan cycle",
		},
		[]string{"reason"}, // reason: composer_fault, duplicate, disabled
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of database queries slower than the threshold",
		},
		[]string{"sql"},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow database queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)
)

// RecordScanCycle 记录扫描周期耗时
func RecordScanCycle(outcome string, duration time.Duration) {
	ScanCycleDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCandidates 记录候选数量
func RecordCandidates(n int) {
	ScanCandidates.Observe(float64(n))
}

// RecordDelivery 记录一次渠道发送
func RecordDelivery(channel, status string, duration time.Duration) {
	DeliveryCount.WithLabelValues(channel, status).Inc()
	if status != "skipped" {
		DeliveryLatency.WithLabelValues(channel).Observe(float64(duration.Milliseconds()))
	}
}

// IncrementRecordsWritten 增加通知记录计数
func IncrementRecordsWritten(channel string) {
	RecordsWritten.WithLabelValues(channel).Inc()
}

// IncrementCandidateSkipped 增加跳过计数
func IncrementCandidateSkipped(reason string) {
	CandidatesSkipped.WithLabelValues(reason).Inc()
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}
