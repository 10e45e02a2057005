package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/gameguard/internal/session"
)

// The detectors in this file consult the session-history store. A failed
// or slow lookup is returned as an error so the battery can log it and
// degrade to "no finding" — it is never interpreted as evidence.

// ---------------------------------------------------------------------------
// IPAbuseDetector: too many games from one address in a day
// ---------------------------------------------------------------------------

type IPAbuseDetector struct {
	Store session.Store
	T     Thresholds
}

func (d *IPAbuseDetector) Name() string { return "ip_abuse" }

func (d *IPAbuseDetector) Detect(ctx context.Context, s *session.GameSession) (*Finding, error) {
	if s.Client.IPAddress == "" {
		return nil, nil
	}

	count, err := d.Store.GetIPGameCount(ctx, s.Client.IPAddress, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ip game count lookup: %w", err)
	}

	if count > d.T.MaxGamesPerIPPerDay {
		return finding(CategoryIPAbuse, SeverityHigh, 0.75,
			fmt.Sprintf("%d games from this IP today exceeds the %d/day cap", count, d.T.MaxGamesPerIPPerDay),
			map[string]interface{}{"gamesToday": count, "cap": d.T.MaxGamesPerIPPerDay}), nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// MultiAccountDetector: one device fingerprint, many player identities
// ---------------------------------------------------------------------------

type MultiAccountDetector struct {
	Store session.Store
	T     Thresholds
}

func (d *MultiAccountDetector) Name() string { return "multi_account" }

func (d *MultiAccountDetector) Detect(ctx context.Context, s *session.GameSession) (*Finding, error) {
	if s.Client.DeviceFingerprint == "" {
		return nil, nil
	}

	accounts, err := d.Store.GetAccountsByFingerprint(ctx, s.Client.DeviceFingerprint)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}

	player := strings.ToLower(s.PlayerAddress)
	known := false
	for _, a := range accounts {
		if strings.EqualFold(a, player) {
			known = true
			break
		}
	}

	if len(accounts) > d.T.MaxAccountsPerDevice && !known {
		return finding(CategoryMultiAccount, SeverityHigh, 0.8,
			fmt.Sprintf("device fingerprint already shared by %d accounts", len(accounts)),
			map[string]interface{}{"accountCount": len(accounts), "cap": d.T.MaxAccountsPerDevice}), nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// HistoryDetector: near-identical repeated results across sessions
// ---------------------------------------------------------------------------

type HistoryDetector struct {
	Store session.Store
	T     Thresholds
}

func (d *HistoryDetector) Name() string { return "pattern_match" }

func (d *HistoryDetector) Detect(ctx context.Context, s *session.GameSession) (*Finding, error) {
	recent, err := d.Store.GetRecentGames(ctx, s.PlayerAddress, d.T.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("recent games lookup: %w", err)
	}
	if len(recent) < d.T.MinHistorySamples {
		return nil, nil
	}

	durations := []float64{s.Result.Duration}
	scores := []float64{float64(s.Result.Score)}
	for _, g := range recent {
		durations = append(durations, g.Result.Duration)
		scores = append(scores, float64(g.Result.Score))
	}

	// Humans do not reproduce exact timings and scores game after game.
	durU := uniformity(durations)
	scoreU := uniformity(scores)
	if durU > d.T.HistorySimilarity && scoreU > d.T.HistorySimilarity {
		return finding(CategoryPatternMatch, SeverityMedium, 0.7,
			fmt.Sprintf("last %d sessions have near-identical durations and scores", len(recent)+1),
			map[string]interface{}{"durationUniformity": durU, "scoreUniformity": scoreU, "samples": len(recent) + 1}), nil
	}
	return nil, nil
}
