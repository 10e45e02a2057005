// Package gameguard is the Go client for submitting game sessions to a
// GameGuard detection server. Game servers use it to sign telemetry
// payloads and act on the resulting allow/block decision.
package gameguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/gameguard/internal/gateway"
	"github.com/mbd888/gameguard/internal/idgen"
	"github.com/mbd888/gameguard/internal/profile"
	"github.com/mbd888/gameguard/internal/session"
)

// Client talks to a GameGuard server on behalf of a game server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     []byte

	// Hooks
	OnBlock func(resp *gateway.DetectionResponse) // Called when a submission is blocked
}

// NewClient creates a client. The secret must match the server's
// DETECTION_SECRET.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		secret:     []byte(secret),
	}
}

// SubmitSession signs a completed game session and submits it for
// analysis. The returned response is non-nil whenever the server answered,
// including on block and rejection paths; err is non-nil for transport
// failures and non-2xx statuses.
func (c *Client) SubmitSession(ctx context.Context, gs *session.GameSession) (*gateway.DetectionResponse, error) {
	ts := time.Now().UnixMilli()
	req := gateway.Request{
		GameSession: *gs,
		Signature: gateway.Sign(c.secret, gs.GameID, gs.PlayerAddress,
			gs.StartTime, gs.EndTime, ts),
		Timestamp: ts,
		Nonce:     idgen.WithPrefix("n_"),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/detections", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit session: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	var resp gateway.DetectionResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return &resp, fmt.Errorf("detection rejected: status %d: %s", httpResp.StatusCode, resp.Error)
	}

	if resp.ShouldBlock && c.OnBlock != nil {
		c.OnBlock(&resp)
	}
	return &resp, nil
}

// PlayerRisk fetches the current risk profile for a player address.
func (c *Client) PlayerRisk(ctx context.Context, address string) (*profile.RiskProfile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/players/"+address+"/risk", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch risk profile: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch risk profile: status %d", httpResp.StatusCode)
	}

	var p profile.RiskProfile
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode risk profile: %w", err)
	}
	return &p, nil
}
