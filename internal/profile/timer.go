package profile

import (
	"context"
	"log/slog"
	"time"
)

// DefaultDecayInterval is how often the decay sweep runs.
const DefaultDecayInterval = 1 * time.Hour

// Timer periodically runs the risk-decay sweep so idle players earn
// trust back over time.
type Timer struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewTimer creates a decay timer. A non-positive interval falls back to
// the default.
func NewTimer(m *Manager, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = DefaultDecayInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		manager:  m,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *Timer) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			changed, err := t.manager.Decay(ctx)
			if err != nil {
				t.logger.Warn("risk decay sweep failed", "error", err)
				continue
			}
			if changed > 0 {
				t.logger.Info("risk decay sweep complete", "profiles_decayed", changed)
			}
		}
	}
}

// Stop halts the loop and waits for it to exit.
func (t *Timer) Stop() {
	close(t.stop)
	<-t.done
}
