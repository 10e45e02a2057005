package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/gameguard/internal/alerts"
	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/profile"
	"github.com/mbd888/gameguard/internal/session"
	"github.com/mbd888/gameguard/internal/validation"
)

// DetectionResponse is the wire shape of a detection result. SessionID
// is present on every path, including failures, so callers can
// correlate with server logs.
type DetectionResponse struct {
	Success     bool                 `json:"success"`
	SessionID   string               `json:"sessionId"`
	Activities  []*detect.Finding    `json:"activities,omitempty"`
	RiskProfile *profile.RiskProfile `json:"riskProfile,omitempty"`
	ShouldBlock bool                 `json:"shouldBlock"`
	BlockReason string               `json:"blockReason,omitempty"`
	Confidence  float64              `json:"confidence"`
	Error       string               `json:"error,omitempty"`
}

// Handler provides the HTTP surface of the detection engine.
type Handler struct {
	gateway  *Gateway
	profiles *profile.Manager
	sessions session.Store
	alerts   alerts.Store
}

// NewHandler creates the detection API handler.
func NewHandler(g *Gateway, profiles *profile.Manager, sessions session.Store, alertStore alerts.Store) *Handler {
	return &Handler{gateway: g, profiles: profiles, sessions: sessions, alerts: alertStore}
}

// RegisterRoutes sets up the detection routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/detections", h.SubmitDetection)
	r.GET("/players/:address/risk", h.GetRiskProfile)
	r.GET("/players/:address/sessions", h.ListPlayerSessions)
	r.GET("/alerts", h.ListAlerts)
}

// SubmitDetection handles POST /v1/detections
func (h *Handler) SubmitDetection(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	res, err := h.gateway.Process(c.Request.Context(), &req)
	if err != nil {
		h.writeProcessError(c, res, err)
		return
	}

	c.JSON(http.StatusOK, DetectionResponse{
		Success:     true,
		SessionID:   res.SessionID,
		Activities:  res.Activities,
		RiskProfile: res.RiskProfile,
		ShouldBlock: res.Decision.ShouldBlock,
		BlockReason: res.Decision.Reason,
		Confidence:  res.Decision.Confidence,
	})
}

// writeProcessError maps pipeline failures to responses. Authentication
// failures fail closed: the caller sees a block decision at maximal
// confidence and the risk profile is never included.
func (h *Handler) writeProcessError(c *gin.Context, res *Result, err error) {
	blocked := DetectionResponse{
		Success:     false,
		SessionID:   res.SessionID,
		ShouldBlock: true,
		Confidence:  1.0,
		Error:       err.Error(),
	}

	switch {
	case errors.Is(err, ErrInvalidSession):
		blocked.BlockReason = "invalid session"
		c.JSON(http.StatusBadRequest, blocked)
	case errors.Is(err, ErrStaleTimestamp):
		blocked.BlockReason = "stale/future timestamp"
		c.JSON(http.StatusUnauthorized, blocked)
	case errors.Is(err, ErrInvalidSignature):
		blocked.BlockReason = "invalid signature"
		c.JSON(http.StatusUnauthorized, blocked)
	case errors.Is(err, ErrReplayed):
		blocked.BlockReason = "request already processed"
		c.JSON(http.StatusConflict, blocked)
	default:
		blocked.BlockReason = "internal error"
		blocked.Error = "detection processing failed"
		c.JSON(http.StatusInternalServerError, blocked)
	}
}

// GetRiskProfile handles GET /v1/players/:address/risk
func (h *Handler) GetRiskProfile(c *gin.Context) {
	address := c.Param("address")

	p, err := h.profiles.Get(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load risk profile",
		})
		return
	}

	c.JSON(http.StatusOK, p)
}

// ListPlayerSessions handles GET /v1/players/:address/sessions
func (h *Handler) ListPlayerSessions(c *gin.Context) {
	address := c.Param("address")
	limit := parseIntQuery(c, "limit", 20)

	summaries, err := h.sessions.ListSummaries(c.Request.Context(), address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list sessions",
		})
		return
	}
	if summaries == nil {
		summaries = []*session.Summary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

// ListAlerts handles GET /v1/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	player := c.Query("player")
	limit := parseIntQuery(c, "limit", 50)

	if player != "" && !validation.IsValidEthAddress(player) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "player must be a valid address (0x + 40 hex chars)",
		})
		return
	}

	list, err := h.alerts.List(c.Request.Context(), player, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": list,
		"count":  len(list),
	})
}

func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil && i > 0 {
			if i > 1000 {
				i = 1000
			}
			return i
		}
	}
	return defaultVal
}
