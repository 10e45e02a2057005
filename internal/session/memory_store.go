package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store with a bounded in-memory arena keyed by
// (player, game). Entries older than the retention window are removed by a
// periodic sweep, so history-based detectors only ever see recent data and
// memory stays bounded in demo mode.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*record // player|game → record
	retention time.Duration
	now       func() time.Time
}

type record struct {
	session    *GameSession
	recordedAt time.Time
}

// NewMemoryStore creates an in-memory session store with the given
// retention window (zero means 24h).
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryStore{
		records:   make(map[string]*record),
		retention: retention,
		now:       time.Now,
	}
}

func arenaKey(playerAddr, gameID string) string {
	return strings.ToLower(playerAddr) + "|" + gameID
}

func (s *MemoryStore) SaveSession(_ context.Context, gs *GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *gs
	s.records[arenaKey(gs.PlayerAddress, gs.GameID)] = &record{
		session:    &cp,
		recordedAt: s.now(),
	}
	return nil
}

func (s *MemoryStore) GetRecentGames(_ context.Context, playerAddr string, limit int) ([]*GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	addr := strings.ToLower(playerAddr)
	var matched []*record
	for key, r := range s.records {
		if strings.HasPrefix(key, addr+"|") {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].recordedAt.After(matched[j].recordedAt)
	})

	var result []*GameSession
	for _, r := range matched {
		cp := *r.session
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) GetIPGameCount(_ context.Context, ip string, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := day.UTC().Date()
	count := 0
	for _, r := range s.records {
		ry, rm, rd := r.recordedAt.UTC().Date()
		if r.session.Client.IPAddress == ip && ry == y && rm == m && rd == d {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetAccountsByFingerprint(_ context.Context, fingerprint string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fingerprint == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, r := range s.records {
		if r.session.Client.DeviceFingerprint != fingerprint {
			continue
		}
		addr := strings.ToLower(r.session.PlayerAddress)
		if !seen[addr] {
			seen[addr] = true
			accounts = append(accounts, addr)
		}
	}
	return accounts, nil
}

func (s *MemoryStore) ListSummaries(_ context.Context, playerAddr string, limit int) ([]*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	addr := strings.ToLower(playerAddr)
	var matched []*record
	for key, r := range s.records {
		if strings.HasPrefix(key, addr+"|") {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].recordedAt.After(matched[j].recordedAt)
	})

	var result []*Summary
	for _, r := range matched {
		result = append(result, &Summary{
			GameID:        r.session.GameID,
			PlayerAddress: r.session.PlayerAddress,
			Won:           r.session.Result.Won,
			Score:         r.session.Result.Score,
			Duration:      r.session.Result.Duration,
			RecordedAt:    r.recordedAt,
		})
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Sweep removes sessions older than the retention window and returns the
// number removed. Call periodically (the server runs it on a ticker).
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for key, r := range s.records {
		if r.recordedAt.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
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
