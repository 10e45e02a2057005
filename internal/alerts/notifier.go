package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbd888/gameguard/internal/circuitbreaker"
	"github.com/mbd888/gameguard/internal/metrics"
	"github.com/mbd888/gameguard/internal/retry"
	"github.com/mbd888/gameguard/internal/security"
)

// webhookKey is the circuit-breaker key for the single operator webhook.
const webhookKey = "alert_webhook"

// Notifier persists alerts and forwards them to an operator webhook.
// Delivery is fire-and-forget: failures are counted and logged, never
// propagated to the caller. Transient delivery failures are retried with
// backoff; a persistently failing endpoint trips a circuit breaker so a
// dead webhook can't pile up goroutines.
type Notifier struct {
	store      Store
	webhookURL string
	client     *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// NewNotifier creates a Notifier. The webhook URL is validated against
// server-side request forgery at construction; an unsafe URL disables
// webhook delivery and only store persistence remains.
func NewNotifier(store Store, webhookURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if webhookURL != "" {
		if err := security.ValidateEndpointURL(webhookURL); err != nil {
			logger.Warn("alert webhook disabled, unsafe URL", "error", err)
			webhookURL = ""
		}
	}
	return &Notifier{
		store:      store,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		breaker:    circuitbreaker.New(5, 30*time.Second),
		logger:     logger,
	}
}

// Notify stores the alert and fires the webhook in the background.
// Errors never reach the caller.
func (n *Notifier) Notify(ctx context.Context, a *Alert) {
	if err := n.store.Create(ctx, a); err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("store_error").Inc()
		n.logger.Warn("alert store failed", "player", a.PlayerAddress, "error", err)
		return
	}

	if n.webhookURL == "" {
		metrics.AlertDeliveriesTotal.WithLabelValues("stored").Inc()
		return
	}
	go n.deliver(a)
}

func (n *Notifier) deliver(a *Alert) {
	body, err := json.Marshal(a)
	if err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("encode_error").Inc()
		return
	}

	if n.breaker != nil && !n.breaker.Allow(webhookKey) {
		metrics.AlertDeliveriesTotal.WithLabelValues("circuit_open").Inc()
		return
	}

	var lastStatus int
	err = retry.Do(context.Background(), 3, time.Second, func() error {
		resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			// Client errors won't improve on retry
			return retry.Permanent(fmt.Errorf("webhook status %d", resp.StatusCode))
		default:
			return nil
		}
	})
	if err != nil {
		if n.breaker != nil {
			n.breaker.RecordFailure(webhookKey)
		}
		if lastStatus >= 300 && lastStatus < 500 {
			metrics.AlertDeliveriesTotal.WithLabelValues("rejected").Inc()
			n.logger.Warn("alert webhook rejected", "player", a.PlayerAddress, "status", lastStatus)
			return
		}
		metrics.AlertDeliveriesTotal.WithLabelValues("delivery_error").Inc()
		n.logger.Warn("alert webhook delivery failed", "player", a.PlayerAddress, "error", err)
		return
	}

	if n.breaker != nil {
		n.breaker.RecordSuccess(webhookKey)
	}
	metrics.AlertDeliveriesTotal.WithLabelValues("delivered").Inc()
}
