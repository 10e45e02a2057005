package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrReplayed is returned when a (player, game, nonce) tuple has already
// been consumed. Replays fail closed and never touch the risk profile.
var ErrReplayed = errors.New("detection request already processed")

// NonceStore enforces at-most-once processing per request identity.
type NonceStore interface {
	// Consume atomically marks the tuple as processed. A second call
	// with the same tuple returns ErrReplayed.
	Consume(ctx context.Context, player, gameID, nonce string) error
}

// ---------------------------------------------------------------------------
// MemoryNonceStore
// ---------------------------------------------------------------------------

// MemoryNonceStore keeps consumed tuples in memory with an expiry sweep.
// Tuples older than the retention window can never pass the freshness
// check anyway, so dropping them is safe.
type MemoryNonceStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

var _ NonceStore = (*MemoryNonceStore)(nil)

// NewMemoryNonceStore creates a store retaining tuples for the given
// window. A non-positive retention defaults to one hour.
func NewMemoryNonceStore(retention time.Duration) *MemoryNonceStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &MemoryNonceStore{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

func nonceKey(player, gameID, nonce string) string {
	return strings.ToLower(player) + "|" + gameID + "|" + nonce
}

func (s *MemoryNonceStore) Consume(_ context.Context, player, gameID, nonce string) error {
	key := nonceKey(player, gameID, nonce)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return ErrReplayed
	}
	s.seen[key] = s.now()
	return nil
}

// Sweep drops tuples older than the retention window and returns how
// many were removed.
func (s *MemoryNonceStore) Sweep() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (s *MemoryNonceStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// ---------------------------------------------------------------------------
// PostgresNonceStore
// ---------------------------------------------------------------------------

// PostgresNonceStore enforces replay protection with a unique-key insert,
// making Consume atomic across server instances.
type PostgresNonceStore struct {
	db *sql.DB
}

var _ NonceStore = (*PostgresNonceStore)(nil)

// NewPostgresNonceStore creates a store backed by the given database.
func NewPostgresNonceStore(db *sql.DB) *PostgresNonceStore {
	return &PostgresNonceStore{db: db}
}

// Migrate creates the processed_requests table if needed.
func (s *PostgresNonceStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS processed_requests (
			player_addr  TEXT NOT NULL,
			game_id      TEXT NOT NULL,
			nonce        TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (player_addr, game_id, nonce)
		);
		CREATE INDEX IF NOT EXISTS idx_processed_requests_age
			ON processed_requests(processed_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate processed_requests: %w", err)
	}
	return nil
}

func (s *PostgresNonceStore) Consume(ctx context.Context, player, gameID, nonce string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_requests (player_addr, game_id, nonce)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		strings.ToLower(player), gameID, nonce)
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if n == 0 {
		return ErrReplayed
	}
	return nil
}

// Prune deletes tuples older than the retention window.
func (s *PostgresNonceStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM processed_requests WHERE processed_at < $1`,
		time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune nonces: %w", err)
	}
	return res.RowsAffected()
}
