package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the API server.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitDenials *prometheus.CounterVec
	LimiterFailOpens prometheus.Counter
	CompletionsTotal *prometheus.CounterVec
	TokensTotal      *prometheus.CounterVec
	UploadBytes      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loomchat",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "loomchat",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RateLimitDenials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loomchat",
				Name:      "rate_limit_denials_total",
				Help:      "Requests denied by the rate limiter",
			},
			[]string{"class"},
		),
		LimiterFailOpens: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "loomchat",
				Name:      "rate_limiter_fail_opens_total",
				Help:      "Limiter backend errors answered by failing open",
			},
		),
		CompletionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loomchat",
				Name:      "completions_total",
				Help:      "Chat completions by model and outcome",
			},
			[]string{"model", "outcome"}, // outcome=ok/error
		),
		TokensTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loomchat",
				Name:      "tokens_total",
				Help:      "Tokens consumed by direction",
			},
			[]string{"direction"}, // direction=input/output
		),
		UploadBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "loomchat",
				Name:      "upload_bytes_total",
				Help:      "Attachment bytes accepted",
			},
		),
	}
}
