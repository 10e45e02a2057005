// Package session defines the completed-game input contract and the
// session-history store consumed by the detector battery.
//
// A GameSession is immutable once submitted: detectors read it, nothing
// mutates it. History queries (recent games, per-IP counts, fingerprint
// collisions) go through the Store interface so detectors can run against
// Postgres in production and an in-memory arena in demo mode and tests.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound = errors.New("session not found")
)

// GameSession is one completed game plus the telemetry the client reported
// alongside it. All of it is untrusted input.
type GameSession struct {
	GameID        string `json:"gameId"`
	PlayerAddress string `json:"playerAddress"`
	StartTime     int64  `json:"startTime"` // epoch milliseconds
	EndTime       int64  `json:"endTime"`   // epoch milliseconds

	Board       BoardConfig          `json:"board"`
	Result      GameResult           `json:"result"`
	Client      ClientTelemetry      `json:"client"`
	Network     NetworkTelemetry     `json:"network"`
	Performance PerformanceTelemetry `json:"performance"`
}

// BoardConfig is the declared board the game was played on.
type BoardConfig struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Mines      int    `json:"mines"`
	Difficulty string `json:"difficulty"`
}

// GameResult is the client-reported outcome of the game.
type GameResult struct {
	Won               bool      `json:"won"`
	Score             int64     `json:"score"`
	Duration          float64   `json:"duration"` // seconds, client-reported
	FlagsUsed         int       `json:"flagsUsed"`
	CellsRevealed     int       `json:"cellsRevealed"`
	MoveCount         int       `json:"moveCount"`
	FirstClickOffset  int64     `json:"firstClickOffset"` // ms after StartTime
	LastClickOffset   int64     `json:"lastClickOffset"`  // ms before EndTime
	HintCount         int       `json:"hintCount"`
	PauseCount        int       `json:"pauseCount"`
	TotalPauseTime    float64   `json:"totalPauseTime"` // seconds
	EfficiencyPct     float64   `json:"efficiencyPct"`
	ClickIntervals    []float64 `json:"clickIntervals"` // ms between consecutive clicks
	PointerPathDigest string    `json:"pointerPathDigest"`
}

// ClientTelemetry is the browser environment the client reported.
type ClientTelemetry struct {
	UserAgent         string `json:"userAgent"`
	IPAddress         string `json:"ipAddress"`
	ScreenResolution  string `json:"screenResolution"`
	Timezone          string `json:"timezone"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	Language          string `json:"language"`
	Platform          string `json:"platform"`
	CookiesEnabled    bool   `json:"cookiesEnabled"`
	JavaEnabled       bool   `json:"javaEnabled"`
	WebGLHash         string `json:"webglHash"`
	CanvasHash        string `json:"canvasHash"`
	AudioHash         string `json:"audioHash"`
}

// NetworkTelemetry is the connection the client reported.
type NetworkTelemetry struct {
	ConnectionType string  `json:"connectionType"` // e.g. "4g", "wifi", "slow-2g"
	DownlinkMbps   float64 `json:"downlinkMbps"`
	RTTMs          float64 `json:"rttMs"`
}

// PerformanceTelemetry is the client-side resource usage during the game.
type PerformanceTelemetry struct {
	MemoryUsageMB float64 `json:"memoryUsageMb"`
	CPUUsagePct   float64 `json:"cpuUsagePct"`
	FrameRate     float64 `json:"frameRate"`
	RenderTimeMs  float64 `json:"renderTimeMs"`
}

// WallClock returns the server-observable session length derived from the
// start/end timestamps, independent of the client-reported Duration.
func (s *GameSession) WallClock() time.Duration {
	return time.Duration(s.EndTime-s.StartTime) * time.Millisecond
}

// MaxRevealableCells is the number of non-mine cells on the declared board.
func (s *GameSession) MaxRevealableCells() int {
	return s.Board.Width*s.Board.Height - s.Board.Mines
}

// Validate checks the structural invariants a session must satisfy before
// any detector runs. Logical impossibilities that are themselves cheat
// signals (e.g. more cells revealed than the board holds) are left to the
// data-integrity detector so they produce a finding, not a 400.
func (s *GameSession) Validate() error {
	if s.GameID == "" {
		return fmt.Errorf("gameId is required")
	}
	if !common.IsHexAddress(s.PlayerAddress) {
		return fmt.Errorf("playerAddress must be a valid wallet address")
	}
	if s.StartTime <= 0 || s.EndTime <= 0 {
		return fmt.Errorf("startTime and endTime are required")
	}
	if s.EndTime < s.StartTime {
		return fmt.Errorf("endTime must not precede startTime")
	}
	if s.Board.Width <= 0 || s.Board.Height <= 0 {
		return fmt.Errorf("board dimensions must be positive")
	}
	if s.Board.Mines <= 0 || s.Board.Mines >= s.Board.Width*s.Board.Height {
		return fmt.Errorf("mine count must be positive and leave at least one free cell")
	}
	if s.Result.Score < 0 {
		return fmt.Errorf("score must not be negative")
	}
	if s.Result.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if s.Result.CellsRevealed < 0 || s.Result.MoveCount < 0 || s.Result.FlagsUsed < 0 {
		return fmt.Errorf("result counters must not be negative")
	}
	return nil
}

// Summary is the compact per-session view exposed on the operator read API.
type Summary struct {
	GameID        string    `json:"gameId"`
	PlayerAddress string    `json:"playerAddress"`
	Won           bool      `json:"won"`
	Score         int64     `json:"score"`
	Duration      float64   `json:"duration"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// Store provides session history for the detectors and records sessions
// that passed authentication. Implementations must be safe for concurrent
// use; lookups carry their own timeouts via ctx.
type Store interface {
	// SaveSession records a session after a successful detection request.
	SaveSession(ctx context.Context, s *GameSession) error
	// GetRecentGames returns up to limit most recent sessions for a player,
	// newest first.
	GetRecentGames(ctx context.Context, playerAddr string, limit int) ([]*GameSession, error)
	// GetIPGameCount counts sessions recorded from an IP on the given UTC day.
	GetIPGameCount(ctx context.Context, ip string, day time.Time) (int, error)
	// GetAccountsByFingerprint returns the distinct player addresses that
	// have submitted sessions with this device fingerprint.
	GetAccountsByFingerprint(ctx context.Context, fingerprint string) ([]string, error)
	// ListSummaries returns compact summaries for the operator API.
	ListSummaries(ctx context.Context, playerAddr string, limit int) ([]*Summary, error)
}
