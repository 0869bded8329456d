// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

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

	// Provider 指标
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	embeddingsUnavailable prometheus.Counter

	// 会话指标
	turnsTotal       *prometheus.CounterVec
	turnDuration     prometheus.Histogram
	duplicatesTotal  prometheus.Counter
	guardrailsTotal  *prometheus.CounterVec
	documentsTotal   *prometheus.CounterVec
	inflightMessages prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器；reg 为 nil 时注册到默认 Registerer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

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

	c.providerCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of AI provider attempts",
		},
		[]string{"provider", "model", "task", "status"},
	)
	c.providerCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "AI provider attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
		},
		[]string{"provider", "task"},
	)
	c.embeddingsUnavailable = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embeddings_unavailable_total",
		Help:      "Embedding requests that fell back to an empty result",
	})

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Inbound turns processed by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)
	c.turnDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "End-to-end inbound turn processing time",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
	c.duplicatesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_messages_total",
		Help:      "Inbound messages dropped by deduplication",
	})
	c.guardrailsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_triggers_total",
			Help:      "Guardrail rules triggered",
		},
		[]string{"stage", "rule"},
	)
	c.documentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_classified_total",
			Help:      "Documents received by category",
		},
		[]string{"category"},
	)
	c.inflightMessages = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_messages",
		Help:      "Inbound messages currently being processed",
	})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProviderCall 记录一次 Provider 尝试
func (c *Collector) RecordProviderCall(provider, model, task string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.providerCallsTotal.WithLabelValues(provider, model, task, status).Inc()
	c.providerCallDuration.WithLabelValues(provider, task).Observe(duration.Seconds())
}

// RecordEmbeddingsUnavailable 记录一次向量降级
func (c *Collector) RecordEmbeddingsUnavailable() {
	c.embeddingsUnavailable.Inc()
}

// RecordTurn 记录一轮入站消息处理
func (c *Collector) RecordTurn(phase, outcome string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(phase, outcome).Inc()
	c.turnDuration.Observe(duration.Seconds())
}

// RecordDuplicate 记录被去重丢弃的消息
func (c *Collector) RecordDuplicate() {
	c.duplicatesTotal.Inc()
}

// RecordGuardrail 记录护栏规则触发；stage 为 input/output/hallucination
func (c *Collector) RecordGuardrail(stage string, rules ...string) {
	for _, r := range rules {
		c.guardrailsTotal.WithLabelValues(stage, r).Inc()
	}
}

// RecordDocument 记录文档分类结果
func (c *Collector) RecordDocument(category string) {
	c.documentsTotal.WithLabelValues(category).Inc()
}

// MessageStarted 入站消息开始处理，返回结束回调
func (c *Collector) MessageStarted() func() {
	c.inflightMessages.Inc()
	return c.inflightMessages.Dec
}
