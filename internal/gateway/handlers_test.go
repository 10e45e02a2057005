package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/gameguard/internal/alerts"
	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/profile"
	"github.com/mbd888/gameguard/internal/session"
)

func newTestRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fx := newFixture(t)
	h := NewHandler(fx.gateway, fx.profiles, fx.sessions, fx.alerts)

	r := gin.New()
	h.RegisterRoutes(r.Group("/v1"))
	return r, fx
}

func postDetection(t *testing.T, r *gin.Engine, req *Request) (*httptest.ResponseRecorder, DetectionResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/detections", bytes.NewReader(body)))

	var resp DetectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSubmitDetectionOK(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := postDetection(t, r, signedRequest(legitSession("game-1"), "n-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.False(t, resp.ShouldBlock)
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.RiskProfile)
	assert.Equal(t, profile.TrustHigh, resp.RiskProfile.TrustLevel)
}

func TestSubmitDetectionBlocksCheater(t *testing.T) {
	r, _ := newTestRouter(t)

	s := legitSession("game-1")
	s.Result.CellsRevealed = 200 // board only holds 71 non-mine cells

	w, resp := postDetection(t, r, signedRequest(s, "n-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.True(t, resp.ShouldBlock)

	var forged bool
	for _, f := range resp.Activities {
		if f.Category == detect.CategorySignatureForgery && f.Severity == detect.SeverityCritical {
			forged = true
		}
	}
	assert.True(t, forged, "missing signature_forgery critical finding")
}

func TestSubmitDetectionBadSignature(t *testing.T) {
	r, _ := newTestRouter(t)

	req := signedRequest(legitSession("game-1"), "n-1")
	req.Signature = "deadbeef"

	w, resp := postDetection(t, r, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Success)
	assert.True(t, resp.ShouldBlock)
	assert.Equal(t, 1.0, resp.Confidence)
	assert.NotEmpty(t, resp.SessionID, "sessionId must be present on error paths")
	assert.Nil(t, resp.RiskProfile, "riskProfile must be omitted on auth failure")
}

func TestSubmitDetectionStaleTimestamp(t *testing.T) {
	r, _ := newTestRouter(t)

	s := legitSession("game-1")
	ts := time.Now().Add(-time.Hour).UnixMilli()
	req := &Request{
		GameSession: s,
		Signature:   Sign(testSecret, s.GameID, s.PlayerAddress, s.StartTime, s.EndTime, ts),
		Timestamp:   ts,
		Nonce:       "n-1",
	}

	w, resp := postDetection(t, r, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "stale/future timestamp", resp.BlockReason)
}

func TestSubmitDetectionReplayConflict(t *testing.T) {
	r, _ := newTestRouter(t)

	req := signedRequest(legitSession("game-1"), "nonce-once")

	w1, _ := postDetection(t, r, req)
	require.Equal(t, http.StatusOK, w1.Code)

	w2, resp := postDetection(t, r, req)
	assert.Equal(t, http.StatusConflict, w2.Code)
	assert.True(t, resp.ShouldBlock)
	assert.NotEmpty(t, resp.SessionID)
}

func TestSubmitDetectionInvalidBody(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/detections",
		bytes.NewReader([]byte("{not json"))))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRiskProfile(t *testing.T) {
	r, _ := newTestRouter(t)

	// A flagged session first, so the profile exists.
	s := legitSession("game-1")
	s.Result.Duration = 2
	s.EndTime = s.StartTime + 2_000
	w1, _ := postDetection(t, r, signedRequest(s, "n-1"))
	require.Equal(t, http.StatusOK, w1.Code)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/players/"+testPlayer+"/risk", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var p profile.RiskProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Greater(t, p.Components.Speed, 0.0)
	assert.Equal(t, int64(1), p.TotalFlags)
}

func TestGetRiskProfileUnknownPlayerDefaults(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/v1/players/0x2222222222222222222222222222222222222222/risk", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var p profile.RiskProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, profile.TrustHigh, p.TrustLevel)
	assert.Zero(t, p.OverallRiskScore)
}

func TestListPlayerSessions(t *testing.T) {
	r, _ := newTestRouter(t)

	w1, _ := postDetection(t, r, signedRequest(legitSession("game-1"), "n-1"))
	require.Equal(t, http.StatusOK, w1.Code)
	w2, _ := postDetection(t, r, signedRequest(legitSession("game-2"), "n-2"))
	require.Equal(t, http.StatusOK, w2.Code)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/players/"+testPlayer+"/sessions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sessions []*session.Summary `json:"sessions"`
		Count    int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestListAlerts(t *testing.T) {
	r, fx := newTestRouter(t)

	_ = fx.alerts.Create(context.Background(), &alerts.Alert{PlayerAddress: testPlayer, Reason: "blocked"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/alerts?player="+testPlayer, nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestListAlertsRejectsBadAddress(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/alerts?player=garbage", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
