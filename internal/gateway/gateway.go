// Package gateway is the request boundary of the detection engine. Each
// submission moves through a fixed pipeline: authenticate (freshness,
// signature, replay), analyze (detector battery), decide (profile update
// plus decision engine), respond (alert and broadcast). A failure before
// authentication completes terminates with a block decision and never
// touches the risk profile.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/gameguard/internal/alerts"
	"github.com/mbd888/gameguard/internal/decision"
	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/idgen"
	"github.com/mbd888/gameguard/internal/metrics"
	"github.com/mbd888/gameguard/internal/profile"
	"github.com/mbd888/gameguard/internal/session"
	"github.com/mbd888/gameguard/internal/syncutil"
	"github.com/mbd888/gameguard/internal/traces"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrStaleTimestamp means the request timestamp fell outside the
	// freshness window. Fails closed.
	ErrStaleTimestamp = errors.New("stale or future request timestamp")
	// ErrInvalidSignature means the request HMAC did not verify. Fails
	// closed.
	ErrInvalidSignature = errors.New("invalid request signature")
	// ErrInvalidSession means the submitted session failed validation.
	ErrInvalidSession = errors.New("invalid game session")
)

const (
	// FreshnessWindow bounds |now - request timestamp|.
	FreshnessWindow = 5 * time.Minute
	// AlertConfidence is the block-confidence floor above which an
	// operator alert is emitted.
	AlertConfidence = 0.9
)

// Request is one detection submission.
type Request struct {
	GameSession session.GameSession `json:"gameSession"`
	Signature   string              `json:"signature"`
	Timestamp   int64               `json:"timestamp"`
	Nonce       string              `json:"nonce"`
}

// Result is the outcome of a fully processed submission.
type Result struct {
	SessionID   string
	Activities  []*detect.Finding
	RiskProfile *profile.RiskProfile
	Decision    decision.Decision
}

// EventSink receives processed results for realtime distribution.
// Implementations must not block.
type EventSink interface {
	DetectionProcessed(res *Result, s *session.GameSession)
}

// Gateway wires the detection pipeline together.
type Gateway struct {
	battery    *detect.Battery
	thresholds detect.Thresholds
	profiles   *profile.Manager
	engine     *decision.Engine
	sessions   session.Store
	nonces     NonceStore
	notifier   *alerts.Notifier
	sink       EventSink
	locks      *syncutil.ContextShardedMutex
	secret     []byte
	freshness  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithNotifier attaches the operator alert sink.
func WithNotifier(n *alerts.Notifier) GatewayOption {
	return func(g *Gateway) { g.notifier = n }
}

// WithEventSink attaches a realtime event sink.
func WithEventSink(s EventSink) GatewayOption {
	return func(g *Gateway) { g.sink = s }
}

// WithFreshnessWindow overrides the timestamp freshness window.
func WithFreshnessWindow(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.freshness = d }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway. The secret authenticates submissions; it must
// match the signer on the game-server side.
func New(secret []byte, battery *detect.Battery, thresholds detect.Thresholds,
	profiles *profile.Manager, engine *decision.Engine,
	sessions session.Store, nonces NonceStore, opts ...GatewayOption) *Gateway {

	g := &Gateway{
		battery:    battery,
		thresholds: thresholds,
		profiles:   profiles,
		engine:     engine,
		sessions:   sessions,
		nonces:     nonces,
		locks:      syncutil.NewContextShardedMutex(),
		secret:     secret,
		freshness:  FreshnessWindow,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process runs one submission through the pipeline. The returned Result
// always carries a session identifier, including on error paths, so
// callers can correlate logs.
func (g *Gateway) Process(ctx context.Context, req *Request) (*Result, error) {
	res := &Result{SessionID: idgen.WithPrefix("det_")}
	s := &req.GameSession

	ctx, span := traces.StartSpan(ctx, "gateway.Process",
		traces.SessionID(res.SessionID), traces.PlayerAddr(s.PlayerAddress),
		traces.GameID(s.GameID))
	defer span.End()

	log := g.logger.With("session_id", res.SessionID,
		"player", s.PlayerAddress, "game", s.GameID)

	// received -> authenticated
	authCtx, authSpan := traces.StartSpan(ctx, "gateway.authenticate")
	err := g.authenticate(authCtx, req)
	if err != nil {
		authSpan.RecordError(err)
		authSpan.SetStatus(codes.Error, "authentication failed")
	}
	authSpan.End()
	if err != nil {
		span.SetStatus(codes.Error, "authentication failed")
		log.Info("detection request rejected", "error", err)
		return res, err
	}

	// Per-player serialization: two concurrent submissions for the same
	// player must not interleave the profile read-modify-write. Requests
	// for different players proceed in parallel.
	unlock, err := g.locks.LockContext(ctx, strings.ToLower(s.PlayerAddress))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "player lock unavailable")
		return res, fmt.Errorf("acquire player lock: %w", err)
	}
	defer unlock()

	// authenticated -> analyzed
	metrics.SessionsAnalyzedTotal.Inc()
	analyzeCtx, analyzeSpan := traces.StartSpan(ctx, "gateway.analyze")
	res.Activities = g.battery.Analyze(analyzeCtx, s, g.thresholds)
	analyzeSpan.SetAttributes(attribute.Int("detection.findings", len(res.Activities)))
	analyzeSpan.End()

	// analyzed -> decided
	decideCtx, decideSpan := traces.StartSpan(ctx, "gateway.decide")
	prof, err := g.profiles.Apply(decideCtx, s.PlayerAddress, res.Activities)
	if err != nil {
		decideSpan.RecordError(err)
		decideSpan.SetStatus(codes.Error, "risk profile update failed")
		decideSpan.End()
		span.SetStatus(codes.Error, "risk profile update failed")
		log.Error("risk profile update failed", "error", err)
		return res, err
	}
	res.RiskProfile = prof
	res.Decision = g.engine.Decide(res.Activities, prof)
	decideSpan.SetAttributes(attribute.Bool("decision.block", res.Decision.ShouldBlock))
	decideSpan.End()

	// decided -> responded
	respondCtx, respondSpan := traces.StartSpan(ctx, "gateway.respond")
	g.respond(respondCtx, res, s, log)
	respondSpan.End()
	return res, nil
}

// authenticate enforces freshness, signature, and replay protection, in
// that order. Any failure here fails closed.
func (g *Gateway) authenticate(ctx context.Context, req *Request) error {
	s := &req.GameSession

	if err := s.Validate(); err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("invalid_session").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if req.Nonce == "" {
		metrics.AuthFailuresTotal.WithLabelValues("missing_nonce").Inc()
		return fmt.Errorf("%w: nonce is required", ErrInvalidSession)
	}

	skew := g.now().UnixMilli() - req.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > g.freshness.Milliseconds() {
		metrics.AuthFailuresTotal.WithLabelValues("stale_timestamp").Inc()
		return ErrStaleTimestamp
	}

	if !verifySignature(g.secret, req.Signature,
		s.GameID, s.PlayerAddress, s.StartTime, s.EndTime, req.Timestamp) {
		metrics.AuthFailuresTotal.WithLabelValues("invalid_signature").Inc()
		return ErrInvalidSignature
	}

	if err := g.nonces.Consume(ctx, s.PlayerAddress, s.GameID, req.Nonce); err != nil {
		if errors.Is(err, ErrReplayed) {
			metrics.ReplaysRejectedTotal.Inc()
			metrics.AuthFailuresTotal.WithLabelValues("replayed").Inc()
			return err
		}
		// A nonce-store outage must not let a possible replay through.
		metrics.AuthFailuresTotal.WithLabelValues("nonce_store_error").Inc()
		return fmt.Errorf("replay check failed: %w", err)
	}
	return nil
}

// respond records the session, emits the alert when warranted, and
// forwards the result to the realtime sink. All best-effort.
func (g *Gateway) respond(ctx context.Context, res *Result, s *session.GameSession, log *slog.Logger) {
	// Recording survives caller disconnects; the decision has already
	// been committed to the profile.
	bg := context.WithoutCancel(ctx)

	if err := g.sessions.SaveSession(bg, s); err != nil {
		log.Warn("session record failed", "error", err)
	}

	d := res.Decision
	if d.ShouldBlock {
		log.Info("session blocked", "rule", d.Rule,
			"confidence", d.Confidence, "reason", d.Reason)
	}

	if g.notifier != nil && d.ShouldBlock && d.Confidence > AlertConfidence {
		g.notifier.Notify(bg, &alerts.Alert{
			PlayerAddress: s.PlayerAddress,
			GameID:        s.GameID,
			SessionID:     res.SessionID,
			Reason:        d.Reason,
			Confidence:    d.Confidence,
			TrustLevel:    res.RiskProfile.TrustLevel.String(),
			Findings:      res.Activities,
			CreatedAt:     g.now().UTC(),
		})
	}

	if g.sink != nil {
		g.sink.DetectionProcessed(res, s)
	}
}
