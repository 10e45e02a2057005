// Package detect implements the detector battery: a fixed set of
// independent, side-effect-free checks that each inspect one signal
// category of a completed game session and emit at most one finding.
//
// Detectors never depend on each other and never mutate the session.
// The Battery fans them out concurrently with a per-detector timeout and
// folds the findings into a composite risk score; a detector that errors
// or times out degrades to "no finding" and never fails the request.
package detect

import (
	"time"
)

// Category identifies the signal a finding belongs to. The set is closed;
// the profile manager routes each category to exactly one risk component.
type Category string

const (
	CategoryImpossibleSpeed      Category = "impossible_speed"
	CategoryPatternMatch         Category = "pattern_match"
	CategoryIPAbuse              Category = "ip_abuse"
	CategoryMultiAccount         Category = "multi_account"
	CategoryBotBehavior          Category = "bot_behavior"
	CategoryMousePattern         Category = "mouse_pattern"
	CategoryTimingAnomaly        Category = "timing_anomaly"
	CategoryFingerprintCollision Category = "fingerprint_collision"
	CategoryNetworkAnomaly       Category = "network_anomaly"
	CategoryPerformanceAnomaly   Category = "performance_anomaly"
	CategorySignatureForgery     Category = "signature_forgery"
)

// Severity is the ordinal impact class of a finding.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the severity as its wire name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a severity from its wire name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"medium"`:
		*s = SeverityMedium
	case `"high"`:
		*s = SeverityHigh
	case `"critical"`:
		*s = SeverityCritical
	default:
		*s = SeverityLow
	}
	return nil
}

// Finding is one detector's output for one session. Immutable once
// created; consumed by the aggregator, the profile manager, and the
// decision engine.
type Finding struct {
	Category    Category               `json:"category"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Confidence  float64                `json:"confidence"`
	DetectedAt  time.Time              `json:"detectedAt"`
}

// aggregateWeight is the severity weighting used for the composite risk
// score that decides whether a synthesized pattern-match finding is added.
var aggregateWeight = map[Severity]float64{
	SeverityLow:      1,
	SeverityMedium:   3,
	SeverityHigh:     7,
	SeverityCritical: 10,
}

// CompositeScore is the confidence-weighted severity sum over findings.
func CompositeScore(findings []*Finding) float64 {
	total := 0.0
	for _, f := range findings {
		total += aggregateWeight[f.Severity] * f.Confidence
	}
	return total
}

// MaxSeverity returns the highest severity among findings, or SeverityLow
// for an empty list.
func MaxSeverity(findings []*Finding) Severity {
	max := SeverityLow
	for _, f := range findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// CountBySeverity returns how many findings carry the given severity.
func CountBySeverity(findings []*Finding, sev Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}
