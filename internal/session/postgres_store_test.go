package session

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/gameguard/internal/testutil"
)

func pgSession(gameID, player, ip, fingerprint string) *GameSession {
	start := time.Now().Add(-2 * time.Minute).UnixMilli()
	return &GameSession{
		GameID:        gameID,
		PlayerAddress: player,
		StartTime:     start,
		EndTime:       start + 60_000,
		Board:         BoardConfig{Width: 9, Height: 9, Mines: 10, Difficulty: "beginner"},
		Result: GameResult{
			Won:            true,
			Score:          520,
			Duration:       60,
			CellsRevealed:  50,
			MoveCount:      45,
			ClickIntervals: []float64{150, 230, 180},
		},
		Client: ClientTelemetry{
			UserAgent:         "Mozilla/5.0",
			IPAddress:         ip,
			DeviceFingerprint: fingerprint,
		},
	}
}

func TestPostgresStoreSessionRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	player := "0xAbCd000000000000000000000000000000000001"
	if err := store.SaveSession(ctx, pgSession("game-1", player, "203.0.113.7", "fp-1")); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.SaveSession(ctx, pgSession("game-2", player, "203.0.113.7", "fp-1")); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Lookup is case-insensitive on the player address.
	recent, err := store.GetRecentGames(ctx, player, 10)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}

	// The JSONB payload comes back intact, telemetry included.
	for _, gs := range recent {
		if len(gs.Result.ClickIntervals) != 3 {
			t.Errorf("clickIntervals = %v, payload not preserved", gs.Result.ClickIntervals)
		}
		if gs.Client.DeviceFingerprint != "fp-1" {
			t.Errorf("fingerprint = %q, payload not preserved", gs.Client.DeviceFingerprint)
		}
	}
}

func TestPostgresStoreDuplicateSessionIgnored(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	player := "0xAbCd000000000000000000000000000000000002"

	first := pgSession("game-1", player, "203.0.113.7", "fp-1")
	if err := store.SaveSession(ctx, first); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Same (player, game) with a different outcome: first write wins.
	second := pgSession("game-1", player, "203.0.113.7", "fp-1")
	second.Result.Score = 9999
	if err := store.SaveSession(ctx, second); err != nil {
		t.Fatalf("SaveSession duplicate: %v", err)
	}

	recent, err := store.GetRecentGames(ctx, player, 10)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %d, want 1", len(recent))
	}
	if recent[0].Result.Score != 520 {
		t.Errorf("score = %d, duplicate overwrote the original", recent[0].Result.Score)
	}
}

func TestPostgresStoreIPGameCount(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	for i, player := range []string{
		"0xAbCd000000000000000000000000000000000003",
		"0xAbCd000000000000000000000000000000000004",
	} {
		gs := pgSession("game-ip", player, "198.51.100.9", "")
		gs.GameID = gs.GameID + string(rune('a'+i))
		if err := store.SaveSession(ctx, gs); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	count, err := store.GetIPGameCount(ctx, "198.51.100.9", time.Now())
	if err != nil {
		t.Fatalf("GetIPGameCount: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	none, err := store.GetIPGameCount(ctx, "198.51.100.10", time.Now())
	if err != nil {
		t.Fatalf("GetIPGameCount: %v", err)
	}
	if none != 0 {
		t.Errorf("count = %d, want 0", none)
	}
}

func TestPostgresStoreAccountsByFingerprint(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	players := []string{
		"0xAbCd000000000000000000000000000000000005",
		"0xAbCd000000000000000000000000000000000006",
	}
	for i, player := range players {
		gs := pgSession("game-fp", player, "203.0.113.7", "fp-shared")
		gs.GameID = gs.GameID + string(rune('a'+i))
		if err := store.SaveSession(ctx, gs); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	accounts, err := store.GetAccountsByFingerprint(ctx, "fp-shared")
	if err != nil {
		t.Fatalf("GetAccountsByFingerprint: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("accounts = %v, want 2 distinct", accounts)
	}

	// Empty fingerprint never matches.
	empty, err := store.GetAccountsByFingerprint(ctx, "")
	if err != nil {
		t.Fatalf("GetAccountsByFingerprint: %v", err)
	}
	if empty != nil {
		t.Errorf("accounts for empty fingerprint = %v, want none", empty)
	}
}

func TestPostgresStoreListSummaries(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	player := "0xAbCd000000000000000000000000000000000007"
	for _, game := range []string{"game-1", "game-2", "game-3"} {
		if err := store.SaveSession(ctx, pgSession(game, player, "203.0.113.7", "fp-1")); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	summaries, err := store.ListSummaries(ctx, player, 2)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2 (limit applied)", len(summaries))
	}
	for _, s := range summaries {
		if !s.Won || s.Score != 520 {
			t.Errorf("summary = %+v, columns not preserved", s)
		}
		if s.RecordedAt.IsZero() {
			t.Error("summary missing recorded_at")
		}
	}
}
