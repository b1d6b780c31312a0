// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// 结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics 指标收集器
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 指标
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// 打款指标
	payoutsTotal      *prometheus.CounterVec
	payoutAmountTotal prometheus.Counter

	// 营销活动指标
	campaignChargesTotal  *prometheus.CounterVec
	campaignMessagesTotal *prometheus.CounterVec

	// 外部调用指标
	externalCallDuration *prometheus.HistogramVec
}

// New 创建指标收集器并注册到 reg，reg 为 nil 时使用独立注册表
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "barbershop"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		payoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payouts_total",
				Help:      "Total number of payout attempts",
			},
			[]string{"result"},
		),
		payoutAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payout_amount_total",
				Help:      "Total amount transferred to barbers",
			},
		),
		campaignChargesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaign_charges_total",
				Help:      "Total number of campaign charge attempts",
			},
			[]string{"result"},
		),
		campaignMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaign_messages_total",
				Help:      "Total number of campaign messages by channel",
			},
			[]string{"channel", "result"},
		),
		externalCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "external_call_duration_seconds",
				Help:      "External service call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus HTTP 处理器
func (m *Metrics) Handler() gin.HandlerFunc {
	var h http.Handler
	if m != nil && m.gatherer != nil {
		h = promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	} else {
		h = promhttp.Handler()
	}
	return gin.WrapH(h)
}

// RecordPayout 记录一次打款结果
func (m *Metrics) RecordPayout(result string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.payoutsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess && amount.IsPositive() {
		m.payoutAmountTotal.Add(amount.InexactFloat64())
	}
}

// RecordCharge 记录一次营销活动扣费结果
func (m *Metrics) RecordCharge(result string) {
	if m == nil {
		return
	}
	m.campaignChargesTotal.WithLabelValues(result).Inc()
}

// RecordMessages 记录群发消息数量
func (m *Metrics) RecordMessages(channel, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.campaignMessagesTotal.WithLabelValues(channel, result).Add(float64(n))
}

// ObserveExternalCall 记录外部服务调用耗时
func (m *Metrics) ObserveExternalCall(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.externalCallDuration.WithLabelValues(service).Observe(d.Seconds())
}
