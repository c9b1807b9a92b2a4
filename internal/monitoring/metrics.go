package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus 指标集合
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	aliasesCreated *prometheus.CounterVec
	aliasFailures  *prometheus.CounterVec

	authAttempts     *prometheus.CounterVec
	challengesIssued prometheus.Counter

	remoteCallDuration *prometheus.HistogramVec

	panicsTotal      prometheus.Counter
	rateLimitBlocked prometheus.Counter
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailalias_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailalias_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		aliasesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailalias_aliases_created_total",
				Help: "Total number of aliases created successfully",
			},
			[]string{"domain"},
		),
		aliasFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailalias_alias_failures_total",
				Help: "Total number of alias creation failures by reason",
			},
			[]string{"reason"},
		),
		authAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailalias_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"outcome"},
		),
		challengesIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailalias_altcha_challenges_issued_total",
				Help: "Total number of ALTCHA challenges issued",
			},
		),
		remoteCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailalias_mailcow_call_duration_seconds",
				Help:    "Mailcow API call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "outcome"},
		),
		panicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailalias_panics_recovered_total",
				Help: "Total number of panics recovered by middleware",
			},
		),
		rateLimitBlocked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailalias_rate_limit_blocked_total",
				Help: "Total number of requests blocked by rate limiting",
			},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAliasCreated 记录一次别名创建成功
func (m *Metrics) RecordAliasCreated(domain string) {
	m.aliasesCreated.WithLabelValues(domain).Inc()
}

// RecordAliasFailure 记录一次别名创建失败
func (m *Metrics) RecordAliasFailure(reason string) {
	m.aliasFailures.WithLabelValues(reason).Inc()
}

// RecordAuthAttempt 记录一次认证尝试
func (m *Metrics) RecordAuthAttempt(outcome string) {
	m.authAttempts.WithLabelValues(outcome).Inc()
}

// RecordChallengeIssued 记录一次验证挑战下发
func (m *Metrics) RecordChallengeIssued() {
	m.challengesIssued.Inc()
}

// RecordRemoteCall 记录一次 Mailcow API 调用耗时
func (m *Metrics) RecordRemoteCall(endpoint string, duration time.Duration, outcome string) {
	m.remoteCallDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}

// RecordPanic 记录一次被恢复的 panic
func (m *Metrics) RecordPanic() {
	m.panicsTotal.Inc()
}

// RecordRateLimited 记录一次被限流拦截的请求
func (m *Metrics) RecordRateLimited() {
	m.rateLimitBlocked.Inc()
}

// HTTPHandler 返回 /metrics 端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
