package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 决策计数
	DecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_decision_count",
			Help: "Total number of notification decisions",
		},
		[]string{"decision", "reason"},
	)

	// 决策延迟（秒）
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_decision_duration_seconds",
			Help:    "Time spent deciding a notification event",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"decision"},
	)

	// 偏好写入计数
	PreferenceWriteCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preference_write_count",
			Help: "Total number of preference records written",
		},
		[]string{"kind", "operation", "status"}, // kind: subscription, dnd; operation: set, update
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// 熔断拒绝计数
	StoreRejectedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_circuit_rejected_count",
			Help: "Store calls rejected because the circuit breaker is open",
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordDecision 记录一次决策
func RecordDecision(decision, reason string, duration time.Duration) {
	DecisionCount.WithLabelValues(decision, reason).Inc()
	DecisionDuration.WithLabelValues(decision).Observe(duration.Seconds())
}

// IncrementPreferenceWrite 增加偏好写入计数
func IncrementPreferenceWrite(kind, operation, status string) {
	PreferenceWriteCount.WithLabelValues(kind, operation, status).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// IncrementStoreRejected 增加熔断拒绝计数
func IncrementStoreRejected() {
	StoreRejectedCount.Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
