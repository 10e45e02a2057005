// Package profile maintains the long-lived per-player risk record: five
// risk components accumulating evidence over time, a derived overall
// score and trust level, and a bounded history of recent findings.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/gameguard/internal/detect"
)

// ErrNotFound is returned when no risk profile exists for a player.
var ErrNotFound = errors.New("risk profile not found")

// TrustLevel is the coarse bucket derived from the overall risk score.
// Stricter decision rules apply as trust degrades.
type TrustLevel int

const (
	TrustHigh TrustLevel = iota
	TrustMedium
	TrustLow
	TrustBlacklist
)

var trustNames = map[TrustLevel]string{
	TrustHigh:      "high",
	TrustMedium:    "medium",
	TrustLow:       "low",
	TrustBlacklist: "blacklist",
}

func (t TrustLevel) String() string {
	if s, ok := trustNames[t]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON renders the trust level as its lowercase name.
func (t TrustLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses a lowercase trust level name.
func (t *TrustLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for level, name := range trustNames {
		if name == s {
			*t = level
			return nil
		}
	}
	return fmt.Errorf("unknown trust level %q", s)
}

// Components are the five independently-tracked risk scores, each
// bounded to [0,100].
type Components struct {
	Speed    float64 `json:"speed"`
	Pattern  float64 `json:"pattern"`
	Behavior float64 `json:"behavior"`
	Network  float64 `json:"network"`
	Device   float64 `json:"device"`
}

// RiskProfile is the evolving risk record for one player identity.
// OverallRiskScore and TrustLevel are always recomputed from the
// components, never stored independently of them.
type RiskProfile struct {
	PlayerAddress    string            `json:"playerAddress"`
	Components       Components        `json:"components"`
	OverallRiskScore float64           `json:"overallRiskScore"`
	TrustLevel       TrustLevel        `json:"trustLevel"`
	TotalFlags       int64             `json:"totalFlags"`
	RecentActivities []*detect.Finding `json:"recentActivities"`
	LastUpdated      time.Time         `json:"lastUpdated"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// Weights holds the tunable update constants. The routing multipliers
// come from observed abuse economics, not physical law; operators may
// retune them without code changes.
type Weights struct {
	// Severity impact multipliers, indexed by detect.Severity.
	SeverityMultiplier map[detect.Severity]float64

	// Per-component routing multipliers applied on top of the impact.
	SpeedMult    float64
	PatternMult  float64
	BehaviorMult float64
	NetworkMult  float64
	DeviceMult   float64

	// Overall-score component weights.
	SpeedWeight    float64
	PatternWeight  float64
	BehaviorWeight float64
	NetworkWeight  float64
	DeviceWeight   float64

	// History amplification: overall is scaled by
	// min(HistoryAmpCap, 1 + recentCount/HistoryAmpDivisor).
	HistoryAmpCap     float64
	HistoryAmpDivisor float64

	// RecentActivityCap bounds the stored finding history.
	RecentActivityCap int

	// Trust breakpoints on the overall score.
	BlacklistScore float64
	LowTrustScore  float64
	MediumScore    float64

	// DecayPerDay is subtracted from every component per day of
	// inactivity by the decay sweep.
	DecayPerDay float64
}

// DefaultWeights returns the production update constants.
func DefaultWeights() Weights {
	return Weights{
		SeverityMultiplier: map[detect.Severity]float64{
			detect.SeverityLow:      1,
			detect.SeverityMedium:   2,
			detect.SeverityHigh:     3,
			detect.SeverityCritical: 4,
		},
		SpeedMult:    5,
		PatternMult:  4,
		BehaviorMult: 6,
		NetworkMult:  3,
		DeviceMult:   3,

		SpeedWeight:    0.25,
		PatternWeight:  0.20,
		BehaviorWeight: 0.20,
		NetworkWeight:  0.15,
		DeviceWeight:   0.10,

		HistoryAmpCap:     1.5,
		HistoryAmpDivisor: 100,

		RecentActivityCap: 50,

		BlacklistScore: 80,
		LowTrustScore:  60,
		MediumScore:    30,

		DecayPerDay: 2.0,
	}
}

// New returns a default profile for a player with no history: all
// components zero, full trust.
func New(player string, now time.Time) *RiskProfile {
	return &RiskProfile{
		PlayerAddress: player,
		TrustLevel:    TrustHigh,
		LastUpdated:   now,
		CreatedAt:     now,
	}
}

// Recompute derives the overall score and trust level from the current
// components and history length. Call after any component mutation.
func (p *RiskProfile) Recompute(w Weights) {
	weighted := p.Components.Speed*w.SpeedWeight +
		p.Components.Pattern*w.PatternWeight +
		p.Components.Behavior*w.BehaviorWeight +
		p.Components.Network*w.NetworkWeight +
		p.Components.Device*w.DeviceWeight

	amp := 1 + float64(len(p.RecentActivities))/w.HistoryAmpDivisor
	if amp > w.HistoryAmpCap {
		amp = w.HistoryAmpCap
	}

	p.OverallRiskScore = clamp(weighted*amp, 0, 100)

	switch {
	case p.OverallRiskScore >= w.BlacklistScore:
		p.TrustLevel = TrustBlacklist
	case p.OverallRiskScore >= w.LowTrustScore:
		p.TrustLevel = TrustLow
	case p.OverallRiskScore >= w.MediumScore:
		p.TrustLevel = TrustMedium
	default:
		p.TrustLevel = TrustHigh
	}
}

// clone returns a deep copy so store callers can mutate freely.
func (p *RiskProfile) clone() *RiskProfile {
	cp := *p
	cp.RecentActivities = make([]*detect.Finding, len(p.RecentActivities))
	copy(cp.RecentActivities, p.RecentActivities)
	return &cp
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
