// Package observability provides metrics and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecipesSubmitted counts recipes entering the moderation queue.
	RecipesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recipebox_recipes_submitted_total",
		Help: "Total number of recipes submitted for review",
	})

	// ModerationDecisions counts administrator decisions by subject and outcome.
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipebox_moderation_decisions_total",
		Help: "Total moderation decisions by subject (user, recipe, delete_request) and decision",
	}, []string{"subject", "decision"})

	// ReviewsCreated counts reviews left on approved recipes.
	ReviewsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recipebox_reviews_created_total",
		Help: "Total number of reviews created",
	})

	// LoginAttempts counts login attempts by result.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipebox_login_attempts_total",
		Help: "Login attempts by result (success, invalid, pending)",
	}, []string{"result"})

	// OTPMails counts verification mails by purpose and delivery result.
	OTPMails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipebox_otp_mails_total",
		Help: "Verification mails by purpose and result",
	}, []string{"purpose", "result"})

	// OTPVerifications counts code checks by purpose and result.
	OTPVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipebox_otp_verifications_total",
		Help: "OTP verifications by purpose and result",
	}, []string{"purpose", "result"})

	// DBQueryDuration records database query latency.
	DBQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recipebox_database_query_duration_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DBQueryErrors counts failed database queries.
	DBQueryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recipebox_database_query_errors_total",
		Help: "Total number of failed database queries",
	})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipebox_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// WebSocketConnections is the gauge of open notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recipebox_websocket_connections",
		Help: "Number of open notification WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped because a client was too slow.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipebox_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})
)
