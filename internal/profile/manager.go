package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/metrics"
)

// Store persists risk profiles keyed by player identity.
type Store interface {
	// Get returns the profile for a player, or ErrNotFound.
	Get(ctx context.Context, player string) (*RiskProfile, error)
	// Save writes the whole profile. The write is atomic: a failed Save
	// commits nothing.
	Save(ctx context.Context, p *RiskProfile) error
	// List returns profiles with overall score at or above minScore,
	// highest first, up to limit.
	List(ctx context.Context, minScore float64, limit int) ([]*RiskProfile, error)
}

// Manager applies aggregated findings to per-player risk profiles.
// Callers must serialize Apply per player identity; the manager itself
// does no locking.
type Manager struct {
	store   Store
	weights Weights
	logger  *slog.Logger
	now     func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWeights overrides the default update constants.
func WithWeights(w Weights) ManagerOption {
	return func(m *Manager) { m.weights = w }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		weights: DefaultWeights(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Weights returns the active update constants.
func (m *Manager) Weights() Weights { return m.weights }

// Get returns the stored profile for a player, or a fresh default
// profile when none exists yet.
func (m *Manager) Get(ctx context.Context, player string) (*RiskProfile, error) {
	p, err := m.store.Get(ctx, player)
	if errors.Is(err, ErrNotFound) {
		return New(player, m.now().UTC()), nil
	}
	if err != nil {
		metrics.ProfileStoreErrorsTotal.Inc()
		return nil, fmt.Errorf("load risk profile: %w", err)
	}
	return p, nil
}

// Apply routes each finding's impact into the player's risk components,
// records the findings in the bounded history, recomputes the derived
// fields, and persists the result in a single Save. Applying the same
// findings twice raises risk twice; replay protection upstream is what
// makes submissions at-most-once.
func (m *Manager) Apply(ctx context.Context, player string, findings []*detect.Finding) (*RiskProfile, error) {
	p, err := m.Get(ctx, player)
	if err != nil {
		return nil, err
	}

	for _, f := range findings {
		impact := f.Confidence * m.weights.SeverityMultiplier[f.Severity]
		m.route(p, f.Category, impact)
		p.TotalFlags++
	}

	if len(findings) > 0 {
		p.RecentActivities = append(prepend(findings), p.RecentActivities...)
		if len(p.RecentActivities) > m.weights.RecentActivityCap {
			p.RecentActivities = p.RecentActivities[:m.weights.RecentActivityCap]
		}
	}

	p.LastUpdated = m.now().UTC()
	p.Recompute(m.weights)

	if err := m.store.Save(ctx, p); err != nil {
		metrics.ProfileStoreErrorsTotal.Inc()
		return nil, fmt.Errorf("save risk profile: %w", err)
	}
	metrics.ProfileUpdatesTotal.Inc()
	return p, nil
}

// route adds the scaled impact to exactly one component and re-clamps it.
func (m *Manager) route(p *RiskProfile, cat detect.Category, impact float64) {
	c := &p.Components
	switch cat {
	case detect.CategoryImpossibleSpeed, detect.CategoryTimingAnomaly:
		c.Speed = clamp(c.Speed+impact*m.weights.SpeedMult, 0, 100)
	case detect.CategoryPatternMatch, detect.CategoryMousePattern:
		c.Pattern = clamp(c.Pattern+impact*m.weights.PatternMult, 0, 100)
	case detect.CategoryBotBehavior, detect.CategorySignatureForgery:
		c.Behavior = clamp(c.Behavior+impact*m.weights.BehaviorMult, 0, 100)
	case detect.CategoryNetworkAnomaly, detect.CategoryIPAbuse:
		c.Network = clamp(c.Network+impact*m.weights.NetworkMult, 0, 100)
	case detect.CategoryFingerprintCollision, detect.CategoryPerformanceAnomaly, detect.CategoryMultiAccount:
		c.Device = clamp(c.Device+impact*m.weights.DeviceMult, 0, 100)
	default:
		// Unrouted categories land on behavior, the broadest bucket.
		c.Behavior = clamp(c.Behavior+impact*m.weights.BehaviorMult, 0, 100)
	}
}

// Decay lowers every component of every profile that has been idle,
// proportionally to the days since its last update, and recomputes the
// derived fields. Returns the number of profiles changed.
func (m *Manager) Decay(ctx context.Context) (int, error) {
	profiles, err := m.store.List(ctx, 0.01, 0)
	if err != nil {
		metrics.ProfileStoreErrorsTotal.Inc()
		return 0, fmt.Errorf("list risk profiles: %w", err)
	}

	now := m.now().UTC()
	changed := 0
	for _, p := range profiles {
		days := now.Sub(p.LastUpdated).Hours() / 24
		if days < 1 {
			continue
		}
		drop := days * m.weights.DecayPerDay

		c := &p.Components
		c.Speed = clamp(c.Speed-drop, 0, 100)
		c.Pattern = clamp(c.Pattern-drop, 0, 100)
		c.Behavior = clamp(c.Behavior-drop, 0, 100)
		c.Network = clamp(c.Network-drop, 0, 100)
		c.Device = clamp(c.Device-drop, 0, 100)

		p.LastUpdated = now
		p.Recompute(m.weights)

		if err := m.store.Save(ctx, p); err != nil {
			metrics.ProfileStoreErrorsTotal.Inc()
			m.logger.Warn("risk decay save failed", "player", p.PlayerAddress, "error", err)
			continue
		}
		changed++
	}
	return changed, nil
}

// prepend returns findings most-recent-first for history storage.
func prepend(findings []*detect.Finding) []*detect.Finding {
	out := make([]*detect.Finding, len(findings))
	for i, f := range findings {
		out[len(findings)-1-i] = f
	}
	return out
}
