package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/gameguard/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the detection_alerts table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS detection_alerts (
			id          TEXT PRIMARY KEY,
			player_addr TEXT NOT NULL,
			game_id     TEXT NOT NULL,
			session_id  TEXT NOT NULL,
			reason      TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL,
			trust_level TEXT NOT NULL,
			findings    JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_detection_alerts_player
			ON detection_alerts(player_addr, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_detection_alerts_created
			ON detection_alerts(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate detection_alerts: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = idgen.WithPrefix("alert_")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detection_alerts (
			id, player_addr, game_id, session_id, reason,
			confidence, trust_level, findings, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, strings.ToLower(a.PlayerAddress), a.GameID, a.SessionID,
		a.Reason, a.Confidence, a.TrustLevel, findings, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, player string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, player_addr, game_id, session_id, reason,
		       confidence, trust_level, findings, created_at
		FROM detection_alerts`
	args := []interface{}{}
	if player != "" {
		q += ` WHERE player_addr = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, strings.ToLower(player), limit)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Alert
	for rows.Next() {
		a := &Alert{}
		var findings []byte
		if err := rows.Scan(&a.ID, &a.PlayerAddress, &a.GameID, &a.SessionID,
			&a.Reason, &a.Confidence, &a.TrustLevel, &findings, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if len(findings) > 0 {
			if err := json.Unmarshal(findings, &a.Findings); err != nil {
				return nil, fmt.Errorf("decode findings: %w", err)
			}
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
