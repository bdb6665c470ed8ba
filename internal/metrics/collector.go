// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/BaSui01/llmrelay/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 转发指标
	streamsActive       *prometheus.GaugeVec
	streamsTotal        *prometheus.CounterVec
	streamDuration      *prometheus.HistogramVec
	streamUnits         *prometheus.CounterVec
	streamBytes         *prometheus.CounterVec
	streamDecodeErrors  *prometheus.CounterVec
	streamsTruncated    *prometheus.CounterVec
	streamsRejected     prometheus.Counter
	upstreamStatusTotal *prometheus.CounterVec

	// 会话存储指标
	threadOpsTotal   *prometheus.CounterVec
	threadOpDuration *prometheus.HistogramVec

	// 模型安装指标
	modelInstalls *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到 prometheus 默认注册表
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 创建指标收集器并注册到指定注册表
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 转发指标
	c.streamsActive = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_streams_active",
			Help:      "Number of relay streams currently in flight",
		},
		[]string{"mode"},
	)

	c.streamsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_total",
			Help:      "Total number of finished relay streams by terminal state",
		},
		[]string{"mode", "state"},
	)

	c.streamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_stream_duration_seconds",
			Help:      "Relay stream duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	c.streamUnits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_units_total",
			Help:      "Total number of output units written to callers",
		},
		[]string{"mode"},
	)

	c.streamBytes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bytes_total",
			Help:      "Total number of bytes written to callers",
		},
		[]string{"mode"},
	)

	c.streamDecodeErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_decode_errors_total",
			Help:      "Total number of malformed upstream lines",
		},
		[]string{"mode"},
	)

	c.streamsTruncated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_truncated_total",
			Help:      "Total number of streams whose upstream ended with a read error",
		},
		[]string{"mode"},
	)

	c.streamsRejected = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_rejected_total",
			Help:      "Total number of streams rejected by admission control",
		},
	)

	c.upstreamStatusTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_upstream_failures_total",
			Help:      "Total number of upstream failures by status class",
		},
		[]string{"status"},
	)

	// 会话存储指标
	c.threadOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_store_operations_total",
			Help:      "Total number of thread store operations",
		},
		[]string{"operation", "status"},
	)

	c.threadOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "thread_store_operation_duration_seconds",
			Help:      "Thread store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// 模型安装指标
	c.modelInstalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_installs_total",
			Help:      "Total number of model install attempts by result",
		},
		[]string{"result"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔁 转发指标记录（实现 relay.Observer）
// =============================================================================

// StreamStarted 流开始
func (c *Collector) StreamStarted(mode relay.Mode) {
	c.streamsActive.WithLabelValues(mode.String()).Inc()
}

// StreamFinished 流结束
func (c *Collector) StreamFinished(o relay.Outcome) {
	mode := o.Mode.String()

	c.streamsActive.WithLabelValues(mode).Dec()
	c.streamsTotal.WithLabelValues(mode, o.State.String()).Inc()
	c.streamDuration.WithLabelValues(mode).Observe(o.Duration.Seconds())
	c.streamUnits.WithLabelValues(mode).Add(float64(o.Units))
	c.streamBytes.WithLabelValues(mode).Add(float64(o.Bytes))

	if o.DecodeErrors > 0 {
		c.streamDecodeErrors.WithLabelValues(mode).Add(float64(o.DecodeErrors))
	}
	if o.Truncated {
		c.streamsTruncated.WithLabelValues(mode).Inc()
	}
	if o.State == relay.StateUpstreamFailed {
		c.upstreamStatusTotal.WithLabelValues(statusCode(o.StatusCode)).Inc()
	}
}

// RecordStreamRejected 记录被并发上限拒绝的请求
func (c *Collector) RecordStreamRejected() {
	c.streamsRejected.Inc()
}

// =============================================================================
// 💾 会话存储指标记录
// =============================================================================

// RecordThreadOp 记录会话存储操作
func (c *Collector) RecordThreadOp(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.threadOpsTotal.WithLabelValues(operation, status).Inc()
	c.threadOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// =============================================================================
// 📦 模型安装指标记录（实现 backend.InstallRecorder）
// =============================================================================

// RecordInstall 记录安装结果
func (c *Collector) RecordInstall(result string) {
	c.modelInstalls.WithLabelValues(result).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串，0 表示连接失败
func statusCode(code int) string {
	switch {
	case code == 0:
		return "connection"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
