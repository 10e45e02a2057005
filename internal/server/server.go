// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mbd888/gameguard/internal/alerts"
	"github.com/mbd888/gameguard/internal/config"
	"github.com/mbd888/gameguard/internal/decision"
	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/gateway"
	"github.com/mbd888/gameguard/internal/health"
	"github.com/mbd888/gameguard/internal/logging"
	"github.com/mbd888/gameguard/internal/metrics"
	"github.com/mbd888/gameguard/internal/profile"
	"github.com/mbd888/gameguard/internal/ratelimit"
	"github.com/mbd888/gameguard/internal/realtime"
	"github.com/mbd888/gameguard/internal/security"
	"github.com/mbd888/gameguard/internal/session"
	"github.com/mbd888/gameguard/internal/traces"
	"github.com/mbd888/gameguard/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	gateway      *gateway.Gateway
	profiles     *profile.Manager
	sessions     session.Store
	alertStore   alerts.Store
	notifier     *alerts.Notifier
	decayTimer   *profile.Timer
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownSpan func(context.Context) error // tracer shutdown, set in Run
	cancelRunCtx context.CancelFunc          // cancels background goroutines started in Run

	// Memory-mode stores that need periodic sweeping (nil in Postgres mode)
	memSessions *session.MemoryStore
	memNonces   *gateway.MemoryNonceStore
	pgNonces    *gateway.PostgresNonceStore

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	var (
		sessionStore session.Store
		profileStore profile.Store
		alertStore   alerts.Store
		nonceStore   gateway.NonceStore
	)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		sessions := session.NewPostgresStore(db)
		if err := sessions.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate session store", "error", err)
		}
		sessionStore = sessions

		profiles := profile.NewPostgresStore(db)
		if err := profiles.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate profile store", "error", err)
		}
		profileStore = profiles

		alertsPg := alerts.NewPostgresStore(db)
		if err := alertsPg.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate alert store", "error", err)
		}
		alertStore = alertsPg

		nonces := gateway.NewPostgresNonceStore(db)
		if err := nonces.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate nonce store", "error", err)
		}
		nonceStore = nonces
		s.pgNonces = nonces
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		mem := session.NewMemoryStore(cfg.SessionRetention)
		sessionStore = mem
		s.memSessions = mem

		profileStore = profile.NewMemoryStore()
		alertStore = alerts.NewMemoryStore()

		nonces := gateway.NewMemoryNonceStore(cfg.SessionRetention)
		nonceStore = nonces
		s.memNonces = nonces
	}
	s.sessions = sessionStore
	s.alertStore = alertStore

	// Risk profiles with hourly decay
	s.profiles = profile.NewManager(profileStore, profile.WithLogger(s.logger))
	s.decayTimer = profile.NewTimer(s.profiles, cfg.DecayInterval, s.logger)

	// Operator alerting (webhook optional)
	s.notifier = alerts.NewNotifier(alertStore, cfg.AlertWebhookURL, s.logger)
	if cfg.AlertWebhookURL != "" {
		s.logger.Info("alert webhook configured")
	}

	// Realtime hub for WebSocket streaming to dashboards
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Detection pipeline
	battery := detect.NewBattery(sessionStore, detect.DefaultThresholds(),
		detect.WithTimeout(cfg.DetectorTimeout),
		detect.WithLogger(s.logger),
	)
	engine := decision.NewEngine(decision.DefaultRules())

	s.gateway = gateway.New(
		[]byte(cfg.DetectionSecret),
		battery,
		detect.DefaultThresholds(),
		s.profiles,
		engine,
		sessionStore,
		nonceStore,
		gateway.WithNotifier(s.notifier),
		gateway.WithEventSink(&realtimeSink{hub: s.realtimeHub}),
		gateway.WithFreshnessWindow(cfg.FreshnessWindow),
		gateway.WithLogger(s.logger),
	)

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (dashboards are typically served from another origin)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB) — telemetry payloads should never get near this
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Operator dashboard (live detections feed)
	s.router.GET("/", dashboardHandler)

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	detectionHandler := gateway.NewHandler(s.gateway, s.profiles, s.sessions, s.alertStore)
	detectionHandler.RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "GameGuard",
		"description": "Anti-cheat and risk scoring for play-to-earn minesweeper",
		"version":     "0.1.0",
		"endpoints": gin.H{
			"detections": "POST /v1/detections",
			"risk":       "GET /v1/players/{address}/risk",
			"sessions":   "GET /v1/players/{address}/sessions",
			"alerts":     "GET /v1/alerts",
			"stream":     "GET /ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Distributed tracing (no-op without an OTLP endpoint)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownSpan = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start risk decay timer
	s.decayTimer.Start(runCtx)

	// Background retention maintenance
	if s.memSessions != nil {
		go s.memSessions.StartSweeper(runCtx, time.Hour)
	}
	if s.memNonces != nil {
		go s.memNonces.StartSweeper(runCtx, time.Hour)
	}
	if s.pgNonces != nil {
		go s.pruneNoncesLoop(runCtx)
	}

	// DB pool gauges
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// pruneNoncesLoop deletes processed-request rows past the freshness window.
// Rows only need to survive long enough to catch replays of still-fresh
// timestamps, but keeping them a full retention period costs little.
func (s *Server) pruneNoncesLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.pgNonces.Prune(ctx, s.cfg.SessionRetention)
			if err != nil {
				s.logger.Warn("nonce prune failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("pruned processed requests", "count", n)
			}
		}
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers, sweepers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop decay timer
	if s.decayTimer != nil {
		s.decayTimer.Stop()
		s.logger.Info("decay timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownSpan != nil {
		if err := s.shutdownSpan(ctx); err != nil {
			s.logger.Warn("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Realtime adapter
// -----------------------------------------------------------------------------

// realtimeSink adapts realtime.Hub to gateway.EventSink. Every processed
// session is broadcast; blocks and critical findings get their own event
// types so dashboards can subscribe narrowly.
type realtimeSink struct {
	hub *realtime.Hub
}

func (e *realtimeSink) DetectionProcessed(res *gateway.Result, gs *session.GameSession) {
	if e.hub == nil {
		return
	}

	data := map[string]interface{}{
		"sessionId":     res.SessionID,
		"playerAddress": gs.PlayerAddress,
		"gameId":        gs.GameID,
		"findings":      len(res.Activities),
		"shouldBlock":   res.Decision.ShouldBlock,
		"confidence":    res.Decision.Confidence,
	}
	if res.Decision.Reason != "" {
		data["blockReason"] = res.Decision.Reason
	}
	if res.RiskProfile != nil {
		data["overallRiskScore"] = res.RiskProfile.OverallRiskScore
		data["trustLevel"] = res.RiskProfile.TrustLevel.String()
	}

	e.hub.BroadcastDetection(realtime.EventDetection, data)
	if res.Decision.ShouldBlock {
		e.hub.BroadcastDetection(realtime.EventBlock, data)
	}
	for _, f := range res.Activities {
		if f.Severity == detect.SeverityCritical {
			e.hub.BroadcastDetection(realtime.EventCritical, data)
			break
		}
	}
}
