package detect

// Thresholds holds every tunable constant the detectors compare against.
// The defaults reproduce the production calibration; deployments can
// override individual values before constructing the battery.
type Thresholds struct {
	// Speed
	MinGameDurationSec    float64 // below this a win is physically impossible
	MaxOpsPerSecond       float64 // sustained moves/sec cap for a human
	FastWinDurationSec    float64 // "very fast" completion bound
	NearPerfectEfficiency float64

	// Mouse
	MinIntervalSamples int     // minimum click intervals before analysis
	UniformityHigh     float64 // uniformity above this means scripted clicks
	MinClickIntervalMs float64 // physical lower bound between clicks
	FastClickFraction  float64 // tolerated share of sub-minimum intervals

	// Timing
	MaxClockSkewSec   float64 // |wall clock − reported duration| hard bound
	BotClockSkewSec   float64 // tighter skew bound for the bot detector
	MaxPauseRatio     float64 // totalPauseTime / duration cap
	EdgeClickWindowMs int64   // first/last click implausibly near the edges

	// Network
	HighRTTMs           float64
	SlowConnectionTypes []string

	// Performance
	LowFrameRate        float64
	VeryFastDurationSec float64
	HighCPUPct          float64

	// Integrity
	ScorePerMine int64 // plausible score contribution per mine
	ScorePerCell int64 // plausible score contribution per safe cell

	// History
	MaxGamesPerIPPerDay  int
	MaxAccountsPerDevice int
	HistoryWindow        int     // sessions compared by the pattern detector
	MinHistorySamples    int     // sessions required before comparing
	HistorySimilarity    float64 // uniformity above this means replayed results

	// Aggregation
	CompositeThreshold float64 // composite score that triggers the synthetic finding
	CompositeConfCap   float64
	CompositeConfDiv   float64
}

// DefaultThresholds returns the production calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinGameDurationSec:    3,
		MaxOpsPerSecond:       8,
		FastWinDurationSec:    30,
		NearPerfectEfficiency: 98,

		MinIntervalSamples: 10,
		UniformityHigh:     0.9,
		MinClickIntervalMs: 50,
		FastClickFraction:  0.3,

		MaxClockSkewSec:   10,
		BotClockSkewSec:   5,
		MaxPauseRatio:     0.5,
		EdgeClickWindowMs: 50,

		HighRTTMs:           500,
		SlowConnectionTypes: []string{"slow-2g", "2g"},

		LowFrameRate:        20,
		VeryFastDurationSec: 20,
		HighCPUPct:          90,

		ScorePerMine: 100,
		ScorePerCell: 10,

		MaxGamesPerIPPerDay:  50,
		MaxAccountsPerDevice: 3,
		HistoryWindow:        10,
		MinHistorySamples:    5,
		HistorySimilarity:    0.95,

		CompositeThreshold: 15,
		CompositeConfCap:   0.95,
		CompositeConfDiv:   30,
	}
}
