package detect

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/gameguard/internal/session"
)

func baseSession() *session.GameSession {
	start := time.Now().Add(-90 * time.Second).UnixMilli()
	return &session.GameSession{
		GameID:        "game-1",
		PlayerAddress: "0x1111111111111111111111111111111111111111",
		StartTime:     start,
		EndTime:       start + 60_000,
		Board:         session.BoardConfig{Width: 9, Height: 9, Mines: 10},
		Result: session.GameResult{
			Won:              true,
			Score:            500,
			Duration:         60,
			CellsRevealed:    50,
			MoveCount:        45,
			FirstClickOffset: 800,
			LastClickOffset:  600,
			EfficiencyPct:    60,
		},
		Client: session.ClientTelemetry{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
			IPAddress: "203.0.113.7",
		},
		Network:     session.NetworkTelemetry{ConnectionType: "wifi", RTTMs: 40},
		Performance: session.PerformanceTelemetry{FrameRate: 60, CPUUsagePct: 25},
	}
}

func mustDetect(t *testing.T, d Detector, s *session.GameSession) *Finding {
	t.Helper()
	f, err := d.Detect(context.Background(), s)
	if err != nil {
		t.Fatalf("%s: %v", d.Name(), err)
	}
	return f
}

func TestSpeedDetectorBelowMinimum(t *testing.T) {
	s := baseSession()
	s.Result.Duration = 2
	s.EndTime = s.StartTime + 2_000

	f := mustDetect(t, &SpeedDetector{T: DefaultThresholds()}, s)
	if f == nil {
		t.Fatal("expected finding")
	}
	if f.Category != CategoryImpossibleSpeed || f.Severity != SeverityCritical {
		t.Errorf("got %s/%s, want impossible_speed/critical", f.Category, f.Severity)
	}
	if f.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", f.Confidence)
	}
}

func TestSpeedDetectorOpsRate(t *testing.T) {
	s := baseSession()
	s.Result.MoveCount = 600 // 10 ops/sec over 60s

	f := mustDetect(t, &SpeedDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityHigh {
		t.Fatalf("expected high finding, got %+v", f)
	}
}

func TestSpeedDetectorPerfectFastWin(t *testing.T) {
	s := baseSession()
	s.Result.EfficiencyPct = 99
	s.Result.Duration = 25
	s.EndTime = s.StartTime + 25_000

	f := mustDetect(t, &SpeedDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityHigh {
		t.Fatalf("expected high finding, got %+v", f)
	}
}

func TestSpeedDetectorCleanSession(t *testing.T) {
	if f := mustDetect(t, &SpeedDetector{T: DefaultThresholds()}, baseSession()); f != nil {
		t.Errorf("unexpected finding: %+v", f)
	}
}

func TestSpeedDetectorDeterministic(t *testing.T) {
	s := baseSession()
	s.Result.Duration = 2

	d := &SpeedDetector{T: DefaultThresholds()}
	a := mustDetect(t, d, s)
	b := mustDetect(t, d, s)

	if a.Category != b.Category || a.Severity != b.Severity ||
		a.Confidence != b.Confidence || a.Description != b.Description {
		t.Errorf("detector not deterministic: %+v vs %+v", a, b)
	}
}

func TestMouseDetectorUniformIntervals(t *testing.T) {
	s := baseSession()
	// 11 identical intervals: uniformity exactly 1.0.
	s.Result.ClickIntervals = []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100}

	f := mustDetect(t, &MouseDetector{T: DefaultThresholds()}, s)
	if f == nil {
		t.Fatal("expected finding")
	}
	if f.Category != CategoryMousePattern || f.Severity != SeverityHigh {
		t.Errorf("got %s/%s, want mouse_pattern/high", f.Category, f.Severity)
	}
	if u := f.Evidence["uniformity"].(float64); u != 1.0 {
		t.Errorf("uniformity = %v, want 1.0", u)
	}
}

func TestMouseDetectorFastClicks(t *testing.T) {
	s := baseSession()
	// Varied enough to stay under the uniformity threshold, but 5 of 12
	// intervals under the 50ms floor.
	s.Result.ClickIntervals = []float64{20, 420, 30, 380, 25, 300, 40, 250, 35, 200, 150, 100}

	f := mustDetect(t, &MouseDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityMedium {
		t.Fatalf("expected medium finding, got %+v", f)
	}
}

func TestMouseDetectorTooFewSamples(t *testing.T) {
	s := baseSession()
	s.Result.ClickIntervals = []float64{100, 100, 100, 100, 100}

	if f := mustDetect(t, &MouseDetector{T: DefaultThresholds()}, s); f != nil {
		t.Errorf("short sequences must not be scored: %+v", f)
	}
}

func TestTimingDetectorWallClockSkew(t *testing.T) {
	s := baseSession()
	s.Result.Duration = 30 // wall clock says 60s

	f := mustDetect(t, &TimingDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Category != CategoryTimingAnomaly || f.Severity != SeverityHigh {
		t.Fatalf("expected timing_anomaly/high, got %+v", f)
	}
}

func TestTimingDetectorPauseRatio(t *testing.T) {
	s := baseSession()
	s.Result.TotalPauseTime = 40 // 2/3 of a 60s game
	s.Result.PauseCount = 3

	f := mustDetect(t, &TimingDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityMedium {
		t.Fatalf("expected medium finding, got %+v", f)
	}
}

func TestTimingDetectorEdgeClicks(t *testing.T) {
	s := baseSession()
	s.Result.FirstClickOffset = 5

	f := mustDetect(t, &TimingDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityMedium {
		t.Fatalf("expected medium finding, got %+v", f)
	}
}

func TestNetworkDetectorHighRTTFastGame(t *testing.T) {
	s := baseSession()
	s.Network.RTTMs = 800
	s.Result.Duration = 20
	s.EndTime = s.StartTime + 20_000

	f := mustDetect(t, &NetworkDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Category != CategoryNetworkAnomaly {
		t.Fatalf("expected network_anomaly, got %+v", f)
	}
}

func TestNetworkDetectorSlowConnectionPerfectPlay(t *testing.T) {
	s := baseSession()
	s.Network.ConnectionType = "slow-2g"
	s.Result.EfficiencyPct = 99

	f := mustDetect(t, &NetworkDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityMedium {
		t.Fatalf("expected medium finding, got %+v", f)
	}
}

func TestPerformanceDetectorLowFPSFastGame(t *testing.T) {
	s := baseSession()
	s.Performance.FrameRate = 10
	s.Result.Duration = 15
	s.EndTime = s.StartTime + 15_000

	f := mustDetect(t, &PerformanceDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Category != CategoryPerformanceAnomaly {
		t.Fatalf("expected performance_anomaly, got %+v", f)
	}
}

func TestPerformanceDetectorHighCPUPerfectPlay(t *testing.T) {
	s := baseSession()
	s.Performance.CPUUsagePct = 95
	s.Result.EfficiencyPct = 99

	f := mustDetect(t, &PerformanceDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityMedium {
		t.Fatalf("expected medium finding, got %+v", f)
	}
}

func TestIntegrityDetectorImpossibleReveal(t *testing.T) {
	s := baseSession()
	s.Result.CellsRevealed = 100 // board holds 71 non-mine cells

	f := mustDetect(t, &IntegrityDetector{T: DefaultThresholds()}, s)
	if f == nil {
		t.Fatal("expected finding")
	}
	if f.Category != CategorySignatureForgery || f.Severity != SeverityCritical {
		t.Errorf("got %s/%s, want signature_forgery/critical", f.Category, f.Severity)
	}
}

func TestIntegrityDetectorImplausibleScore(t *testing.T) {
	s := baseSession()
	s.Result.Score = 5_000 // max plausible is 10*100 + 71*10 = 1710

	f := mustDetect(t, &IntegrityDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Severity != SeverityHigh {
		t.Fatalf("expected high finding, got %+v", f)
	}
}

func TestBotDetectorAutomationUserAgent(t *testing.T) {
	cases := []string{
		"Mozilla/5.0 HeadlessChrome/120.0",
		"python-requests/2.31.0",
		"Selenium WebDriver",
		"curl/8.4.0",
	}
	for _, ua := range cases {
		s := baseSession()
		s.Client.UserAgent = ua

		f := mustDetect(t, &BotDetector{T: DefaultThresholds()}, s)
		if f == nil || f.Category != CategoryBotBehavior || f.Severity != SeverityCritical {
			t.Errorf("%q: expected bot_behavior/critical, got %+v", ua, f)
		}
	}
}

func TestBotDetectorClockDrift(t *testing.T) {
	s := baseSession()
	s.Result.Duration = 53 // 7s drift from the 60s wall clock

	f := mustDetect(t, &BotDetector{T: DefaultThresholds()}, s)
	if f == nil || f.Category != CategoryBotBehavior || f.Severity != SeverityMedium {
		t.Fatalf("expected bot_behavior/medium, got %+v", f)
	}
}
