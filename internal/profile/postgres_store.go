package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mbd888/gameguard/internal/detect"
)

// PostgresStore persists risk profiles in PostgreSQL. Recent findings
// are stored as a JSONB document; the scored components get their own
// columns so operators can query them directly.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_profiles table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_profiles (
			player_addr   TEXT PRIMARY KEY,
			speed         DOUBLE PRECISION NOT NULL DEFAULT 0,
			pattern       DOUBLE PRECISION NOT NULL DEFAULT 0,
			behavior      DOUBLE PRECISION NOT NULL DEFAULT 0,
			network       DOUBLE PRECISION NOT NULL DEFAULT 0,
			device        DOUBLE PRECISION NOT NULL DEFAULT 0,
			overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			trust_level   TEXT NOT NULL DEFAULT 'high',
			total_flags   BIGINT NOT NULL DEFAULT 0,
			recent        JSONB NOT NULL DEFAULT '[]',
			last_updated  TIMESTAMPTZ NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_risk_profiles_overall
			ON risk_profiles(overall_score DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate risk_profiles: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, player string) (*RiskProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT player_addr, speed, pattern, behavior, network, device,
		       overall_score, trust_level, total_flags, recent,
		       last_updated, created_at
		FROM risk_profiles WHERE player_addr = $1`,
		strings.ToLower(player))
	return scanProfile(row)
}

func (s *PostgresStore) Save(ctx context.Context, p *RiskProfile) error {
	recent, err := json.Marshal(p.RecentActivities)
	if err != nil {
		return fmt.Errorf("encode recent activities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles (
			player_addr, speed, pattern, behavior, network, device,
			overall_score, trust_level, total_flags, recent,
			last_updated, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (player_addr) DO UPDATE SET
			speed = EXCLUDED.speed,
			pattern = EXCLUDED.pattern,
			behavior = EXCLUDED.behavior,
			network = EXCLUDED.network,
			device = EXCLUDED.device,
			overall_score = EXCLUDED.overall_score,
			trust_level = EXCLUDED.trust_level,
			total_flags = EXCLUDED.total_flags,
			recent = EXCLUDED.recent,
			last_updated = EXCLUDED.last_updated`,
		strings.ToLower(p.PlayerAddress),
		p.Components.Speed, p.Components.Pattern, p.Components.Behavior,
		p.Components.Network, p.Components.Device,
		p.OverallRiskScore, p.TrustLevel.String(), p.TotalFlags,
		recent, p.LastUpdated, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save risk profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, minScore float64, limit int) ([]*RiskProfile, error) {
	q := `
		SELECT player_addr, speed, pattern, behavior, network, device,
		       overall_score, trust_level, total_flags, recent,
		       last_updated, created_at
		FROM risk_profiles
		WHERE overall_score >= $1
		ORDER BY overall_score DESC`
	args := []interface{}{minScore}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list risk profiles: %w", err)
	}
	defer rows.Close()

	var out []*RiskProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scannable) (*RiskProfile, error) {
	var (
		p      RiskProfile
		trust  string
		recent []byte
	)
	err := row.Scan(
		&p.PlayerAddress,
		&p.Components.Speed, &p.Components.Pattern, &p.Components.Behavior,
		&p.Components.Network, &p.Components.Device,
		&p.OverallRiskScore, &trust, &p.TotalFlags, &recent,
		&p.LastUpdated, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan risk profile: %w", err)
	}

	if err := (&p.TrustLevel).UnmarshalJSON([]byte(`"` + trust + `"`)); err != nil {
		p.TrustLevel = TrustHigh
	}
	if len(recent) > 0 {
		if err := json.Unmarshal(recent, &p.RecentActivities); err != nil {
			return nil, fmt.Errorf("decode recent activities: %w", err)
		}
	}
	if p.RecentActivities == nil {
		p.RecentActivities = []*detect.Finding{}
	}
	return &p, nil
}
