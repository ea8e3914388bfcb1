// Package metrics exposes prometheus instrumentation for the OAuth flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginsStarted counts authorization flows initiated.
	LoginsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aieng_auth_logins_started_total",
			Help: "The total number of authorization flows initiated.",
		},
	)

	// Callbacks counts callback handling outcomes by result kind.
	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aieng_auth_callbacks_total",
			Help: "The total number of OAuth callbacks handled, by result.",
		},
		[]string{"result"},
	)

	// TokenExchanges counts authorization-code exchanges by result.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aieng_auth_token_exchanges_total",
			Help: "The total number of code-for-token exchanges, by result.",
		},
		[]string{"result"},
	)

	// TokenRefreshes counts refresh attempts by result.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aieng_auth_token_refreshes_total",
			Help: "The total number of token refresh attempts, by result.",
		},
		[]string{"result"},
	)

	// UserInfoRequests counts profile fetches by result.
	UserInfoRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aieng_auth_userinfo_requests_total",
			Help: "The total number of userinfo fetches, by result.",
		},
		[]string{"result"},
	)

	// RefreshTimerFires counts proactive refresh timer expirations.
	RefreshTimerFires = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aieng_auth_refresh_timer_fires_total",
			Help: "The total number of proactive refresh timer fires.",
		},
	)

	// ExchangeDuration is a histogram of token-endpoint round-trip time.
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aieng_auth_exchange_duration_seconds",
			Help:    "A histogram of token endpoint request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"grant_type"},
	)
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)
