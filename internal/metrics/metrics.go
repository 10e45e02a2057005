// Package metrics provides Prometheus instrumentation for the GameGuard service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gameguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gameguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SessionsAnalyzedTotal counts detection requests that reached the battery.
	SessionsAnalyzedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gameguard",
		Name:      "sessions_analyzed_total",
		Help:      "Total game sessions run through the detector battery.",
	})

	// DetectionsTotal counts findings by category and severity.
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gameguard",
			Name:      "detections_total",
			Help:      "Total suspicious-activity findings by category and severity.",
		},
		[]string{"category", "severity"},
	)

	// BlocksTotal counts block decisions by the rule that triggered them.
	BlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gameguard",
			Name:      "blocks_total",
			Help:      "Total block decisions by triggering rule.",
		},
		[]string{"rule"},
	)

	// DetectorDuration observes per-detector run time.
	DetectorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gameguard",
			Name:      "detector_duration_seconds",
			Help:      "Detector run time in seconds, including history lookups.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"detector"},
	)

	// DetectorFailuresTotal counts detectors degraded to "no finding".
	DetectorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gameguard",
			Name:      "detector_failures_total",
			Help:      "Detector runs degraded to no finding, by detector and cause.",
		},
		[]string{"detector", "cause"},
	)

	// AuthFailuresTotal counts rejected requests in the authentication stage.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gameguard",
			Name:      "auth_failures_total",
			Help:      "Detection requests rejected before analysis, by reason.",
		},
		[]string{"reason"},
	)

	// ReplaysRejectedTotal counts already-consumed (player, game, nonce) tuples.
	ReplaysRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gameguard",
		Name:      "replays_rejected_total",
		Help:      "Detection requests rejected by replay protection.",
	})

	// ProfileUpdatesTotal counts committed risk-profile writes.
	ProfileUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gameguard",
		Name:      "profile_updates_total",
		Help:      "Total committed risk-profile updates.",
	})

	// ProfileStoreErrorsTotal counts risk-profile store failures.
	ProfileStoreErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gameguard",
		Name:      "profile_store_errors_total",
		Help:      "Risk-profile store read/write failures.",
	})

	// AlertDeliveriesTotal counts alert-sink deliveries by result.
	AlertDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gameguard",
			Name:      "alert_deliveries_total",
			Help:      "Alert deliveries by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected dashboard clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gameguard",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gameguard", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gameguard", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gameguard", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gameguard", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SessionsAnalyzedTotal,
		DetectionsTotal,
		BlocksTotal,
		DetectorDuration,
		DetectorFailuresTotal,
		AuthFailuresTotal,
		ReplaysRejectedTotal,
		ProfileUpdatesTotal,
		ProfileStoreErrorsTotal,
		AlertDeliveriesTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime
// goroutine count into Prometheus gauges. Call in a goroutine; exits when
// ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
