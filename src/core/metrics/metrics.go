package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 指标名称
const (
	MetricNameHTTPRequestsTotal    = "http_requests_total"
	MetricNameHTTPRequestDuration  = "http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "http_requests_in_flight"
	MetricNameModelCallsTotal      = "model_calls_total"
	MetricNameModelCallDuration    = "model_call_duration_seconds"
	MetricNameVerificationStatus   = "verification_status_total"
	MetricNameDrugInfoCache        = "drug_info_cache_total"
	MetricNameImageValidations     = "image_validations_total"
	MetricNameImageSecurityEvents  = "image_security_incidents_total"
)

// 标签名称
const (
	LabelMethod    = "method"
	LabelPath      = "path"
	LabelStatus    = "status"
	LabelOperation = "operation"
	LabelOutcome   = "outcome"
	LabelColor     = "color"
	LabelResult    = "result"
)

// 模型调用结果
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeParseError = "parse_error"
)

// 图片校验结果
const (
	ImageResultValid   = "valid"
	ImageResultInvalid = "invalid"
)

// 模型调用延迟较长，桶上限放宽到两分钟
var modelLatencyBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}

// HTTP 指标
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameHTTPRequestsTotal,
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameHTTPRequestDuration,
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameHTTPRequestsInFlight,
			Help: "Current number of HTTP requests being served",
		},
	)
)

// 业务指标
var (
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameModelCallsTotal,
			Help: "Total number of model invocations by operation and outcome",
		},
		[]string{LabelOperation, LabelOutcome},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameModelCallDuration,
			Help:    "Model invocation latency in seconds",
			Buckets: modelLatencyBuckets,
		},
		[]string{LabelOperation},
	)

	VerificationStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameVerificationStatus,
			Help: "Verification results by status color",
		},
		[]string{LabelColor},
	)

	DrugInfoCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameDrugInfoCache,
			Help: "Drug info cache lookups by result",
		},
		[]string{LabelResult},
	)
)

// 图片指标
var (
	ImageValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameImageValidations,
			Help: "Image validations by result",
		},
		[]string{LabelResult},
	)

	ImageSecurityIncidents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameImageSecurityEvents,
			Help: "Images rejected with a security risk",
		},
	)
)

// ObserveModelCall 记录一次模型调用
func ObserveModelCall(operation, outcome string, started time.Time) {
	ModelCallsTotal.WithLabelValues(operation, outcome).Inc()
	ModelCallDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Middleware gin中间件：记录请求数、延迟与并发数
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		// 使用路由模板，避免路径参数造成高基数
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
