package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|challenge).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covecrm_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// OTPEmails counts backup OTP / disable-link emails by outcome (sent|rate_limited|failed).
	OTPEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covecrm_otp_emails_total",
			Help: "Total number of backup OTP email requests",
		},
		[]string{"purpose", "result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "covecrm_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "covecrm_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
