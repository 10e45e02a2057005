// Package decision turns a session's findings plus the player's updated
// risk profile into a block/allow verdict.
package decision

import (
	"fmt"
	"strings"

	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/metrics"
	"github.com/mbd888/gameguard/internal/profile"
)

// Decision is the per-request verdict. It is returned to the caller and
// optionally forwarded to the alert sink; it is never persisted.
type Decision struct {
	ShouldBlock bool    `json:"shouldBlock"`
	Reason      string  `json:"blockReason,omitempty"`
	Confidence  float64 `json:"confidence"`
	Rule        string  `json:"-"`
}

// Rules holds the tunable decision thresholds.
type Rules struct {
	// Session risk multipliers, indexed by severity. Distinct from the
	// profile-update multipliers.
	RiskMultiplier map[detect.Severity]float64

	// MinHighFindings is how many HIGH findings in one session block on
	// their own.
	MinHighFindings int
	// MinMediumLowTrust is how many MEDIUM findings block a low-trust
	// player.
	MinMediumLowTrust int

	// SessionRiskThreshold blocks when the weighted session risk
	// exceeds it; confidence is min(RiskConfCap, risk/RiskConfDiv).
	SessionRiskThreshold float64
	RiskConfCap          float64
	RiskConfDiv          float64

	// BlacklistConfidence is the fixed confidence for blacklist blocks.
	BlacklistConfidence float64
	// LowTrustConfidence is the fixed confidence for low-trust blocks.
	LowTrustConfidence float64
}

// DefaultRules returns the production decision thresholds.
func DefaultRules() Rules {
	return Rules{
		RiskMultiplier: map[detect.Severity]float64{
			detect.SeverityLow:      1,
			detect.SeverityMedium:   2,
			detect.SeverityHigh:     4,
			detect.SeverityCritical: 8,
		},
		MinHighFindings:      2,
		MinMediumLowTrust:    2,
		SessionRiskThreshold: 10,
		RiskConfCap:          0.9,
		RiskConfDiv:          20,
		BlacklistConfidence:  0.95,
		LowTrustConfidence:   0.8,
	}
}

// Engine evaluates the block rules in priority order.
type Engine struct {
	rules Rules
}

// NewEngine creates an engine with the given rules.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Decide evaluates the rules in priority order and short-circuits on
// the first match. The profile reflects this session's findings already
// applied.
func (e *Engine) Decide(findings []*detect.Finding, p *profile.RiskProfile) Decision {
	d := e.decide(findings, p)
	if d.ShouldBlock {
		metrics.BlocksTotal.WithLabelValues(d.Rule).Inc()
	}
	return d
}

func (e *Engine) decide(findings []*detect.Finding, p *profile.RiskProfile) Decision {
	// 1. Any critical finding blocks outright.
	for _, f := range findings {
		if f.Severity == detect.SeverityCritical {
			return Decision{
				ShouldBlock: true,
				Reason:      f.Description,
				Confidence:  f.Confidence,
				Rule:        "critical_finding",
			}
		}
	}

	// 2. Multiple independent high-severity signals.
	var highCats []string
	var highConfSum float64
	for _, f := range findings {
		if f.Severity == detect.SeverityHigh {
			highCats = append(highCats, string(f.Category))
			highConfSum += f.Confidence
		}
	}
	if len(highCats) >= e.rules.MinHighFindings {
		return Decision{
			ShouldBlock: true,
			Reason:      fmt.Sprintf("multiple high-severity findings: %s", strings.Join(highCats, ", ")),
			Confidence:  highConfSum / float64(len(highCats)),
			Rule:        "multiple_high",
		}
	}

	// 3. Blacklisted players stay blocked even on a clean session.
	if p.TrustLevel == profile.TrustBlacklist {
		return Decision{
			ShouldBlock: true,
			Reason:      fmt.Sprintf("player blacklisted (risk score %.1f)", p.OverallRiskScore),
			Confidence:  e.rules.BlacklistConfidence,
			Rule:        "blacklist",
		}
	}

	// 4. Low trust plus repeated medium signals this session.
	if p.TrustLevel == profile.TrustLow &&
		detect.CountBySeverity(findings, detect.SeverityMedium) >= e.rules.MinMediumLowTrust {
		return Decision{
			ShouldBlock: true,
			Reason:      "low-trust player with repeated medium-severity findings",
			Confidence:  e.rules.LowTrustConfidence,
			Rule:        "low_trust_medium",
		}
	}

	// 5. Session-level weighted risk.
	var total float64
	for _, f := range findings {
		total += e.rules.RiskMultiplier[f.Severity] * f.Confidence
	}
	if total > e.rules.SessionRiskThreshold {
		conf := total / e.rules.RiskConfDiv
		if conf > e.rules.RiskConfCap {
			conf = e.rules.RiskConfCap
		}
		return Decision{
			ShouldBlock: true,
			Reason:      fmt.Sprintf("combined session risk %.1f exceeds threshold", total),
			Confidence:  conf,
			Rule:        "session_risk",
		}
	}

	return Decision{ShouldBlock: false, Confidence: 0}
}
