package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mbd888/gameguard/internal/metrics"
	"github.com/mbd888/gameguard/internal/session"
	"github.com/mbd888/gameguard/internal/traces"

	"go.opentelemetry.io/otel/codes"
)

// DefaultDetectorTimeout bounds each detector's run, including any
// history-store lookup it performs.
const DefaultDetectorTimeout = 2 * time.Second

// Battery fans the detector set out concurrently against one session and
// joins on all of them. A detector that errors, panics, or exceeds its
// timeout contributes no finding; the request never fails because of it.
type Battery struct {
	detectors []Detector
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures the Battery.
type Option func(*Battery)

// WithTimeout overrides the per-detector timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Battery) { b.timeout = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Battery) { b.logger = l }
}

// WithDetectors overrides the default detector set.
func WithDetectors(ds ...Detector) Option {
	return func(b *Battery) { b.detectors = ds }
}

// NewBattery creates a battery with the full detector set wired against
// the given session-history store.
func NewBattery(store session.Store, t Thresholds, opts ...Option) *Battery {
	b := &Battery{
		detectors: []Detector{
			&SpeedDetector{T: t},
			&MouseDetector{T: t},
			&TimingDetector{T: t},
			&NetworkDetector{T: t},
			&PerformanceDetector{T: t},
			&IntegrityDetector{T: t},
			&BotDetector{T: t},
			&IPAbuseDetector{Store: store, T: t},
			&MultiAccountDetector{Store: store, T: t},
			&HistoryDetector{Store: store, T: t},
		},
		timeout: DefaultDetectorTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type detectorResult struct {
	name    string
	finding *Finding
	err     error
}

// Analyze runs all detectors concurrently against the session, collects
// their findings, and appends the composite finding when the weighted
// score crosses the threshold. The returned order is deterministic:
// individual findings sorted by category, composite last.
func (b *Battery) Analyze(ctx context.Context, s *session.GameSession, t Thresholds) []*Finding {
	results := make(chan detectorResult, len(b.detectors))

	for _, d := range b.detectors {
		go func(d Detector) {
			dctx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()

			dctx, span := traces.StartSpan(dctx, "detect."+d.Name(), traces.Detector(d.Name()))

			start := time.Now()
			f, err := b.runOne(dctx, d, s)
			metrics.DetectorDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, "detector degraded")
			case f != nil:
				span.SetAttributes(traces.Category(string(f.Category)))
			}
			span.End()

			results <- detectorResult{name: d.Name(), finding: f, err: err}
		}(d)
	}

	var findings []*Finding
	for range b.detectors {
		res := <-results
		if res.err != nil {
			// Degraded lookup or timeout: no signal, never a forced finding.
			cause := "error"
			if res.err == context.DeadlineExceeded || ctx.Err() == context.DeadlineExceeded {
				cause = "timeout"
			}
			metrics.DetectorFailuresTotal.WithLabelValues(res.name, cause).Inc()
			b.logger.Warn("detector degraded to no finding",
				"detector", res.name, "error", res.err)
			continue
		}
		if res.finding != nil {
			metrics.DetectionsTotal.WithLabelValues(string(res.finding.Category), res.finding.Severity.String()).Inc()
			findings = append(findings, res.finding)
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Category < findings[j].Category
	})

	if composite := b.composite(findings, t); composite != nil {
		metrics.DetectionsTotal.WithLabelValues(string(composite.Category), composite.Severity.String()).Inc()
		findings = append(findings, composite)
	}
	return findings
}

// runOne executes a single detector, converting panics into errors so one
// misbehaving detector cannot take down the request.
func (b *Battery) runOne(ctx context.Context, d Detector, s *session.GameSession) (f *Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			f = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Detect(ctx, s)
}

// composite synthesizes the aggregate pattern-match finding when the
// confidence-weighted severity sum crosses the threshold. It supplements
// the individual findings, never replaces them.
func (b *Battery) composite(findings []*Finding, t Thresholds) *Finding {
	if len(findings) == 0 {
		return nil
	}

	score := CompositeScore(findings)
	if score <= t.CompositeThreshold {
		return nil
	}

	categories := make([]string, 0, len(findings))
	for _, f := range findings {
		categories = append(categories, string(f.Category))
	}

	conf := score / t.CompositeConfDiv
	if conf > t.CompositeConfCap {
		conf = t.CompositeConfCap
	}

	return finding(CategoryPatternMatch, MaxSeverity(findings), conf,
		fmt.Sprintf("combined signals reach composite risk %.1f across %d detectors", score, len(findings)),
		map[string]interface{}{"compositeScore": score, "categories": categories})
}
