package profile

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests. Player
// addresses are matched case-insensitively.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*RiskProfile
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*RiskProfile)}
}

func (s *MemoryStore) Get(_ context.Context, player string) (*RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[strings.ToLower(player)]
	if !ok {
		return nil, ErrNotFound
	}
	return p.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, p *RiskProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[strings.ToLower(p.PlayerAddress)] = p.clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context, minScore float64, limit int) ([]*RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*RiskProfile
	for _, p := range s.profiles {
		if p.OverallRiskScore >= minScore {
			out = append(out, p.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OverallRiskScore > out[j].OverallRiskScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
