// Package metrics 定义服务暴露的 Prometheus 指标，通过 /metrics 抓取。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resume_ats"

var (
	// 分析
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of completed resume analyses",
		},
		[]string{"source", "cached"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	AnalysisFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Total number of rejected or failed analyses",
		},
		[]string{"reason"},
	)

	OverallScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overall_score",
			Help:      "Distribution of overall ATS scores",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		},
	)

	RecommendFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommend_fallbacks_total",
			Help:      "Times job recommendation fell back to the neutral ranking",
		},
	)

	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Text extraction failures by document kind",
		},
		[]string{"kind"},
	)

	// 缓存
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_hits_total",
			Help:      "Analysis cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_misses_total",
			Help:      "Analysis cache misses",
		},
	)

	// 联系表单与邮件
	ContactMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_messages_total",
			Help:      "Contact messages by final delivery status",
		},
		[]string{"status"},
	)

	MailSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mail_send_duration_seconds",
			Help:      "SMTP delivery latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the per-client rate limiter",
		},
		[]string{"route"},
	)

	// outbox
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages processed by result",
		},
		[]string{"result"},
	)
)

// RecordAnalysis 记录一次完成的分析
func RecordAnalysis(source string, cached bool, score int, duration time.Duration) {
	AnalysesTotal.WithLabelValues(source, strconv.FormatBool(cached)).Inc()
	AnalysisDuration.WithLabelValues(source).Observe(duration.Seconds())
	if !cached {
		OverallScore.Observe(float64(score))
	}
}

// RecordAnalysisFailure 按原因记录失败
func RecordAnalysisFailure(reason string) {
	AnalysisFailures.WithLabelValues(reason).Inc()
}

// RecordCacheLookup 记录缓存命中或未命中
func RecordCacheLookup(hit bool) {
	if hit {
		CacheHits.Inc()
		return
	}
	CacheMisses.Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordMailSend 记录一次 SMTP 投递耗时
func RecordMailSend(duration time.Duration) {
	MailSendDuration.Observe(duration.Seconds())
}

// RecordOutbox 记录 outbox 投递结果: published / retry / failed
func RecordOutbox(result string, n int) {
	if n <= 0 {
		return
	}
	OutboxPublished.WithLabelValues(result).Add(float64(n))
}
