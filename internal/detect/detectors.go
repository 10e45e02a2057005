package detect

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mbd888/gameguard/internal/session"
)

// Detector inspects one signal category of a session and returns at most
// one finding. Implementations must be pure over the session plus
// read-only store lookups: no shared mutable state, no retries, and a
// returned error means "signal lookup failed", never "finding forced".
type Detector interface {
	Name() string
	Detect(ctx context.Context, s *session.GameSession) (*Finding, error)
}

// finding builds a Finding with the detection timestamp filled in.
func finding(cat Category, sev Severity, conf float64, desc string, evidence map[string]interface{}) *Finding {
	return &Finding{
		Category:    cat,
		Severity:    sev,
		Description: desc,
		Evidence:    evidence,
		Confidence:  conf,
		DetectedAt:  time.Now().UTC(),
	}
}

// ---------------------------------------------------------------------------
// SpeedDetector: completions faster than a human can play
// ---------------------------------------------------------------------------

type SpeedDetector struct {
	T Thresholds
}

func (d *SpeedDetector) Name() string { return "impossible_speed" }

func (d *SpeedDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	r := s.Result

	if r.Duration < d.T.MinGameDurationSec {
		return finding(CategoryImpossibleSpeed, SeverityCritical, 0.95,
			fmt.Sprintf("game completed in %.1fs, below the %.0fs physical minimum", r.Duration, d.T.MinGameDurationSec),
			map[string]interface{}{"duration": r.Duration, "minimum": d.T.MinGameDurationSec}), nil
	}

	if r.Duration > 0 {
		opsPerSec := float64(r.MoveCount) / r.Duration
		if opsPerSec > d.T.MaxOpsPerSecond {
			return finding(CategoryImpossibleSpeed, SeverityHigh, 0.85,
				fmt.Sprintf("%.1f operations/sec exceeds the %.0f/sec human cap", opsPerSec, d.T.MaxOpsPerSecond),
				map[string]interface{}{"opsPerSec": opsPerSec, "moveCount": r.MoveCount, "duration": r.Duration}), nil
		}
	}

	if r.EfficiencyPct > d.T.NearPerfectEfficiency && r.Duration < d.T.FastWinDurationSec {
		return finding(CategoryImpossibleSpeed, SeverityHigh, 0.8,
			fmt.Sprintf("%.1f%% efficiency in %.1fs is implausibly fast and precise", r.EfficiencyPct, r.Duration),
			map[string]interface{}{"efficiencyPct": r.EfficiencyPct, "duration": r.Duration}), nil
	}

	return nil, nil
}

// ---------------------------------------------------------------------------
// MouseDetector: machine-regular click cadence
// ---------------------------------------------------------------------------

type MouseDetector struct {
	T Thresholds
}

func (d *MouseDetector) Name() string { return "mouse_pattern" }

func (d *MouseDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	intervals := s.Result.ClickIntervals
	if len(intervals) <= d.T.MinIntervalSamples {
		return nil, nil
	}

	u := uniformity(intervals)
	if u > d.T.UniformityHigh {
		return finding(CategoryMousePattern, SeverityHigh, 0.9,
			fmt.Sprintf("click intervals are %.0f%% uniform, consistent with scripted input", u*100),
			map[string]interface{}{"uniformity": u, "samples": len(intervals)}), nil
	}

	fast := 0
	for _, iv := range intervals {
		if iv < d.T.MinClickIntervalMs {
			fast++
		}
	}
	fastFrac := float64(fast) / float64(len(intervals))
	if fastFrac > d.T.FastClickFraction {
		return finding(CategoryMousePattern, SeverityMedium, 0.7,
			fmt.Sprintf("%.0f%% of clicks landed under the %.0fms physical interval floor", fastFrac*100, d.T.MinClickIntervalMs),
			map[string]interface{}{"fastFraction": fastFrac, "floorMs": d.T.MinClickIntervalMs}), nil
	}

	return nil, nil
}

// ---------------------------------------------------------------------------
// TimingDetector: reported duration vs wall clock, pauses, edge clicks
// ---------------------------------------------------------------------------

type TimingDetector struct {
	T Thresholds
}

func (d *TimingDetector) Name() string { return "timing_anomaly" }

func (d *TimingDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	wallSec := s.WallClock().Seconds()
	skew := math.Abs(wallSec - s.Result.Duration)
	if skew > d.T.MaxClockSkewSec {
		return finding(CategoryTimingAnomaly, SeverityHigh, 0.85,
			fmt.Sprintf("reported duration diverges from session wall clock by %.1fs", skew),
			map[string]interface{}{"wallClockSec": wallSec, "reportedSec": s.Result.Duration, "skewSec": skew}), nil
	}

	if s.Result.Duration > 0 {
		pauseRatio := s.Result.TotalPauseTime / s.Result.Duration
		if pauseRatio > d.T.MaxPauseRatio {
			return finding(CategoryTimingAnomaly, SeverityMedium, 0.6,
				fmt.Sprintf("%.0f%% of the game was spent paused", pauseRatio*100),
				map[string]interface{}{"pauseRatio": pauseRatio, "pauseCount": s.Result.PauseCount}), nil
		}
	}

	// A first click faster than the board can render, or a last click at
	// the very instant the session ends, points at synthesized events.
	if s.Result.MoveCount > 0 &&
		(s.Result.FirstClickOffset < d.T.EdgeClickWindowMs || s.Result.LastClickOffset < d.T.EdgeClickWindowMs) {
		return finding(CategoryTimingAnomaly, SeverityMedium, 0.6,
			"first/last click implausibly close to session boundaries",
			map[string]interface{}{
				"firstClickOffsetMs": s.Result.FirstClickOffset,
				"lastClickOffsetMs":  s.Result.LastClickOffset,
			}), nil
	}

	return nil, nil
}

// ---------------------------------------------------------------------------
// NetworkDetector: connection quality inconsistent with the result
// ---------------------------------------------------------------------------

type NetworkDetector struct {
	T Thresholds
}

func (d *NetworkDetector) Name() string { return "network_anomaly" }

func (d *NetworkDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	if s.Network.RTTMs > d.T.HighRTTMs && s.Result.Duration < d.T.FastWinDurationSec {
		return finding(CategoryNetworkAnomaly, SeverityMedium, 0.6,
			fmt.Sprintf("%.0fms round-trip latency with a %.1fs completion", s.Network.RTTMs, s.Result.Duration),
			map[string]interface{}{"rttMs": s.Network.RTTMs, "duration": s.Result.Duration}), nil
	}

	for _, slow := range d.T.SlowConnectionTypes {
		if strings.EqualFold(s.Network.ConnectionType, slow) && s.Result.EfficiencyPct > d.T.NearPerfectEfficiency {
			return finding(CategoryNetworkAnomaly, SeverityMedium, 0.65,
				fmt.Sprintf("near-perfect play on a %q connection", s.Network.ConnectionType),
				map[string]interface{}{"connectionType": s.Network.ConnectionType, "efficiencyPct": s.Result.EfficiencyPct}), nil
		}
	}

	return nil, nil
}

// ---------------------------------------------------------------------------
// PerformanceDetector: client resource profile inconsistent with the result
// ---------------------------------------------------------------------------

type PerformanceDetector struct {
	T Thresholds
}

func (d *PerformanceDetector) Name() string { return "performance_anomaly" }

func (d *PerformanceDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	p := s.Performance

	if p.FrameRate > 0 && p.FrameRate < d.T.LowFrameRate && s.Result.Duration < d.T.VeryFastDurationSec {
		return finding(CategoryPerformanceAnomaly, SeverityMedium, 0.6,
			fmt.Sprintf("%.0ffps render rate with a %.1fs completion", p.FrameRate, s.Result.Duration),
			map[string]interface{}{"frameRate": p.FrameRate, "duration": s.Result.Duration}), nil
	}

	if p.CPUUsagePct > d.T.HighCPUPct && s.Result.EfficiencyPct > d.T.NearPerfectEfficiency {
		return finding(CategoryPerformanceAnomaly, SeverityMedium, 0.6,
			fmt.Sprintf("%.0f%% CPU usage alongside near-perfect efficiency", p.CPUUsagePct),
			map[string]interface{}{"cpuUsagePct": p.CPUUsagePct, "efficiencyPct": s.Result.EfficiencyPct}), nil
	}

	return nil, nil
}

// ---------------------------------------------------------------------------
// IntegrityDetector: results that are mathematically impossible
// ---------------------------------------------------------------------------

type IntegrityDetector struct {
	T Thresholds
}

func (d *IntegrityDetector) Name() string { return "data_integrity" }

func (d *IntegrityDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	maxCells := s.MaxRevealableCells()
	if s.Result.CellsRevealed > maxCells {
		return finding(CategorySignatureForgery, SeverityCritical, 0.99,
			fmt.Sprintf("%d cells revealed on a board with only %d non-mine cells", s.Result.CellsRevealed, maxCells),
			map[string]interface{}{"cellsRevealed": s.Result.CellsRevealed, "maxRevealable": maxCells}), nil
	}

	maxPlausibleScore := int64(s.Board.Mines)*d.T.ScorePerMine + int64(maxCells)*d.T.ScorePerCell
	if s.Result.Score > maxPlausibleScore {
		return finding(CategorySignatureForgery, SeverityHigh, 0.85,
			fmt.Sprintf("score %d exceeds the plausible maximum %d for this board", s.Result.Score, maxPlausibleScore),
			map[string]interface{}{"score": s.Result.Score, "maxPlausible": maxPlausibleScore}), nil
	}

	return nil, nil
}

// ---------------------------------------------------------------------------
// BotDetector: automation-tool user agents, client/server clock divergence
// ---------------------------------------------------------------------------

// automationUAFragments are substrings of user agents produced by known
// automation stacks. Matching is case-insensitive.
var automationUAFragments = []string{
	"headless", "phantomjs", "selenium", "puppeteer", "playwright",
	"webdriver", "python-requests", "python-urllib", "curl/", "wget/",
	"bot", "spider", "crawler", "scrapy",
}

type BotDetector struct {
	T Thresholds
}

func (d *BotDetector) Name() string { return "bot_behavior" }

func (d *BotDetector) Detect(_ context.Context, s *session.GameSession) (*Finding, error) {
	ua := strings.ToLower(s.Client.UserAgent)
	for _, fragment := range automationUAFragments {
		if strings.Contains(ua, fragment) {
			return finding(CategoryBotBehavior, SeverityCritical, 0.95,
				fmt.Sprintf("user agent matches automation tooling (%q)", fragment),
				map[string]interface{}{"userAgent": s.Client.UserAgent, "match": fragment}), nil
		}
	}

	wallSec := s.WallClock().Seconds()
	skew := math.Abs(wallSec - s.Result.Duration)
	if skew > d.T.BotClockSkewSec {
		return finding(CategoryBotBehavior, SeverityMedium, 0.6,
			fmt.Sprintf("client-reported duration drifts %.1fs from server wall clock", skew),
			map[string]interface{}{"skewSec": skew}), nil
	}

	return nil, nil
}
