package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Queryable signal
// fields (IP, fingerprint, outcome) are real columns; the full session is
// kept as a JSONB payload so history detectors get it back intact.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the game_sessions table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS game_sessions (
			player_addr        TEXT NOT NULL,
			game_id            TEXT NOT NULL,
			ip_address         TEXT NOT NULL DEFAULT '',
			device_fingerprint TEXT NOT NULL DEFAULT '',
			won                BOOLEAN NOT NULL DEFAULT FALSE,
			score              BIGINT NOT NULL DEFAULT 0,
			duration           DOUBLE PRECISION NOT NULL DEFAULT 0,
			payload            JSONB NOT NULL,
			recorded_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (player_addr, game_id)
		);
		CREATE INDEX IF NOT EXISTS idx_game_sessions_ip_day ON game_sessions(ip_address, recorded_at);
		CREATE INDEX IF NOT EXISTS idx_game_sessions_fingerprint ON game_sessions(device_fingerprint);
		CREATE INDEX IF NOT EXISTS idx_game_sessions_player ON game_sessions(player_addr, recorded_at DESC);
	`)
	return err
}

func (p *PostgresStore) SaveSession(ctx context.Context, gs *GameSession) error {
	payload, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO game_sessions (player_addr, game_id, ip_address, device_fingerprint, won, score, duration, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::JSONB, NOW())
		ON CONFLICT (player_addr, game_id) DO NOTHING
	`, strings.ToLower(gs.PlayerAddress), gs.GameID,
		gs.Client.IPAddress, gs.Client.DeviceFingerprint,
		gs.Result.Won, gs.Result.Score, gs.Result.Duration, payload)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetRecentGames(ctx context.Context, playerAddr string, limit int) ([]*GameSession, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT payload FROM game_sessions
		WHERE player_addr = $1
		ORDER BY recorded_at DESC LIMIT $2
	`, strings.ToLower(playerAddr), limit)
	if err != nil {
		return nil, fmt.Errorf("recent games: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*GameSession
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		gs := &GameSession{}
		if err := json.Unmarshal(payload, gs); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		result = append(result, gs)
	}
	return result, rows.Err()
}

func (p *PostgresStore) GetIPGameCount(ctx context.Context, ip string, day time.Time) (int, error) {
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM game_sessions
		WHERE ip_address = $1 AND recorded_at >= $2 AND recorded_at < $3
	`, ip, dayStart, dayStart.Add(24*time.Hour)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ip game count: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) GetAccountsByFingerprint(ctx context.Context, fingerprint string) ([]string, error) {
	if fingerprint == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT player_addr FROM game_sessions
		WHERE device_fingerprint = $1
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("accounts by fingerprint: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, addr)
	}
	return accounts, rows.Err()
}

func (p *PostgresStore) ListSummaries(ctx context.Context, playerAddr string, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT game_id, player_addr, won, score, duration, recorded_at
		FROM game_sessions
		WHERE player_addr = $1
		ORDER BY recorded_at DESC LIMIT $2
	`, strings.ToLower(playerAddr), limit)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Summary
	for rows.Next() {
		s := &Summary{}
		if err := rows.Scan(&s.GameID, &s.PlayerAddress, &s.Won, &s.Score, &s.Duration, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
