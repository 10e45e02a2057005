// Package alerts records high-confidence block decisions and forwards
// them, best-effort, to an operator webhook.
package alerts

import (
	"context"
	"time"

	"github.com/mbd888/gameguard/internal/detect"
)

// Alert captures one high-confidence block decision for operator review.
type Alert struct {
	ID            string            `json:"id"`
	PlayerAddress string            `json:"playerAddress"`
	GameID        string            `json:"gameId"`
	SessionID     string            `json:"sessionId"`
	Reason        string            `json:"reason"`
	Confidence    float64           `json:"confidence"`
	TrustLevel    string            `json:"trustLevel"`
	Findings      []*detect.Finding `json:"findings,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Store persists triggered alerts.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	// List returns the most recent alerts, newest first. An empty player
	// filter returns alerts for all players.
	List(ctx context.Context, player string, limit int) ([]*Alert, error)
}
