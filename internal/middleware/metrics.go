package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minebot_bridge_requests_total",
		Help: "Total number of HTTP requests handled",
	}, []string{"route", "status"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minebot_bridge_actions_total",
		Help: "Total number of actions returned, by action type",
	}, []string{"type"})

	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minebot_bridge_rate_limit_rejections_total",
		Help: "Total number of rate-limited requests",
	}, []string{"scope"})

	replyWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minebot_bridge_reply_wait_seconds",
		Help:    "Time spent waiting for a bot reply",
		Buckets: prometheus.DefBuckets,
	})

	replyTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minebot_bridge_reply_timeouts_total",
		Help: "Total number of poll windows that elapsed without a reply",
	})

	pixelArtDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minebot_bridge_pixelart_compile_seconds",
		Help:    "Time spent compiling pixel art",
		Buckets: prometheus.DefBuckets,
	})

	pixelArtCommands = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minebot_bridge_pixelart_commands",
		Help:    "Number of commands produced per compiled image",
		Buckets: []float64{10, 50, 100, 250, 500, 1000},
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minebot_bridge_active_sessions",
		Help: "Number of cached sessions",
	})

	trackedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minebot_bridge_tracked_players",
		Help: "Number of players tracked by the rate limiter",
	})
)

// Metrics provides methods to record bridge metrics.
type Metrics struct{}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records one handled HTTP request.
func (m *Metrics) RecordRequest(route, status string) {
	requestsTotal.WithLabelValues(route, status).Inc()
}

// RecordAction records the action type returned to the caller.
func (m *Metrics) RecordAction(actionType string) {
	actionsTotal.WithLabelValues(actionType).Inc()
}

// RecordRateLimited records a rejected request; scope is "player" or "global".
func (m *Metrics) RecordRateLimited(scope string) {
	rateLimitRejections.WithLabelValues(scope).Inc()
}

// RecordReplyWait records how long a reply took to arrive.
func (m *Metrics) RecordReplyWait(d time.Duration) {
	replyWaitDuration.Observe(d.Seconds())
}

// RecordReplyTimeout records an elapsed poll window.
func (m *Metrics) RecordReplyTimeout() {
	replyTimeouts.Inc()
}

// RecordPixelArt records one image compilation.
func (m *Metrics) RecordPixelArt(d time.Duration, commandCount int) {
	pixelArtDuration.Observe(d.Seconds())
	pixelArtCommands.Observe(float64(commandCount))
}

// SetActiveSessions updates the session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// SetTrackedPlayers updates the rate limiter gauge.
func (m *Metrics) SetTrackedPlayers(count int) {
	trackedPlayers.Set(float64(count))
}
