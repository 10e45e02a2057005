package alerts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/gameguard/internal/idgen"
)

// MemoryStore implements Store for demo/testing.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []*Alert
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("alert_")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	a.ID = cp.ID
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryStore) List(_ context.Context, player string, limit int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var result []*Alert
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		if player != "" && !strings.EqualFold(s.alerts[i].PlayerAddress, player) {
			continue
		}
		cp := *s.alerts[i]
		result = append(result, &cp)
	}
	return result, nil
}

// Alerts returns all stored alerts (for testing).
func (s *MemoryStore) Alerts() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Alert, len(s.alerts))
	copy(result, s.alerts)
	return result
}
