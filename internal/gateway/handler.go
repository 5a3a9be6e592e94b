// Package gateway exposes the admission-control core over HTTP: routing
// decisions, outcome reconciliation, and tool gating. Handlers read config
// through accessor funcs so hot reloads take effect per request.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/tiergate/internal/auth"
	"github.com/af-corp/tiergate/internal/budget"
	"github.com/af-corp/tiergate/internal/complexity"
	"github.com/af-corp/tiergate/internal/httputil"
	"github.com/af-corp/tiergate/internal/profile"
	"github.com/af-corp/tiergate/internal/routing"
	"github.com/af-corp/tiergate/internal/telemetry"
	"github.com/af-corp/tiergate/internal/toolgate"
	"github.com/af-corp/tiergate/internal/types"
)

// Decisions wait this long for an outcome report before they are dropped.
const pendingTTL = time.Hour

// maxPending bounds the pending-outcome table; beyond it, expired entries
// are swept and then the oldest survivors go.
const maxPending = 4096

// Handler holds dependencies for the routerd HTTP handlers.
type Handler struct {
	router    func() *routing.Router
	gate      func() *toolgate.Gate
	estimator *complexity.Estimator
	tracker   *budget.Tracker
	metrics   *telemetry.Metrics

	mu      sync.Mutex
	pending map[string]pendingDecision
}

type pendingDecision struct {
	senderID string
	decision routing.Decision
	at       time.Time
}

func NewHandler(router func() *routing.Router, gate func() *toolgate.Gate, tracker *budget.Tracker, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		router:    router,
		gate:      gate,
		estimator: complexity.NewEstimator(),
		tracker:   tracker,
		metrics:   metrics,
		pending:   make(map[string]pendingDecision),
	}
}

type routeResponse struct {
	RequestID       string           `json:"request_id"`
	Decision        routing.Decision `json:"decision"`
	Complexity      float64          `json:"complexity"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

// Route handles POST /v1/route
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	start := time.Now()

	ac, _ := auth.FromContext(r.Context())
	prof := profileOf(ac)

	var req types.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}

	if req.Stream && !prof.AllowStreaming {
		httputil.WritePermissionDeniedError(w, reqID, "streaming", "Streaming is not permitted for this sender")
		return
	}

	inputTokens := estimateTokens(req.Messages)
	if prof.MaxInputTokens > 0 && inputTokens > prof.MaxInputTokens {
		httputil.WriteBadRequestError(w, reqID, "Input exceeds the profile's maximum input tokens")
		return
	}
	maxOut := outputCap(req.MaxTokens, prof.MaxOutputTokens)

	var score float64
	if req.Complexity != nil {
		score = *req.Complexity
	} else {
		score = h.estimator.Estimate(req.Messages)
	}

	d := h.router().Route(&routing.Request{
		Auth:            ac,
		Model:           req.Model,
		EstimatedTokens: inputTokens + maxOut,
	}, score)
	durationMs := float64(time.Since(start).Microseconds()) / 1000

	if h.metrics != nil {
		h.metrics.RecordDecision(telemetry.DecisionLabels{
			Tier:       d.Tier,
			Reason:     d.Reason,
			Level:      prof.Level.String(),
			Escalated:  d.Escalated,
			DurationMs: durationMs,
			Routed:     d.Routed(),
		})
	}

	slog.Info("route decided",
		"request_id", reqID,
		"sender", senderOf(ac),
		"level", prof.Level.String(),
		"complexity", score,
		"tier", d.Tier,
		"model", d.Model,
		"reason", d.Reason,
		"escalated", d.Escalated,
		"budget_constrained", d.BudgetConstrained,
		"estimated_cost_usd", d.EstimatedCostUSD,
		"duration_ms", durationMs,
	)

	if !d.Routed() {
		h.writeUnrouted(w, reqID, d)
		return
	}

	h.remember(reqID, senderOf(ac), d)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(routeResponse{
		RequestID:       reqID,
		Decision:        d,
		Complexity:      score,
		MaxOutputTokens: maxOut,
	})
}

// writeUnrouted maps a no-route decision onto the error envelope.
func (h *Handler) writeUnrouted(w http.ResponseWriter, reqID string, d routing.Decision) {
	switch {
	case d.Reason == "rate limited":
		httputil.WriteRateLimitError(w, reqID, "Rate limit exceeded")
	case d.Reason == "no permitted tiers for profile":
		httputil.WritePermissionDeniedError(w, reqID, "model", "No model tier is permitted for this sender")
	case d.BudgetConstrained:
		httputil.WriteBudgetExceededError(w, reqID, "No viable model within remaining budget")
	default:
		httputil.WriteServiceUnavailableError(w, reqID, "No viable model: "+d.Reason)
	}
}

type outcomeRequest struct {
	RequestID     string  `json:"request_id"`
	ActualCostUSD float64 `json:"actual_cost_usd"`
}

// Outcome handles POST /v1/outcome: reconciles a prior decision's cost
// reservation with the observed spend.
func (h *Handler) Outcome(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.RequestID == "" {
		httputil.WriteBadRequestError(w, reqID, "request_id is required")
		return
	}
	if req.ActualCostUSD < 0 {
		httputil.WriteBadRequestError(w, reqID, "actual_cost_usd must be non-negative")
		return
	}

	p, ok := h.take(req.RequestID)
	if !ok {
		httputil.WriteError(w, reqID, http.StatusNotFound, "invalid_request_error", "unknown_request", "Unknown or expired request_id")
		return
	}

	h.router().RecordOutcome(p.senderID, p.decision, req.ActualCostUSD)
	if h.metrics != nil {
		h.metrics.RecordSpend(p.decision.Tier, req.ActualCostUSD)
	}

	slog.Info("outcome recorded",
		"request_id", req.RequestID,
		"sender", p.senderID,
		"tier", p.decision.Tier,
		"estimated_cost_usd", p.decision.EstimatedCostUSD,
		"actual_cost_usd", req.ActualCostUSD,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
}

type toolCheckRequest struct {
	Tool string `json:"tool"`
}

type toolCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ToolCheck handles POST /v1/toolcheck
func (h *Handler) ToolCheck(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	ac, _ := auth.FromContext(r.Context())
	prof := profileOf(ac)

	var req toolCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Tool == "" {
		httputil.WriteBadRequestError(w, reqID, "tool is required")
		return
	}

	allowed, reason := h.gate().Check(prof, req.Tool)
	if !allowed {
		slog.Info("tool denied",
			"request_id", reqID,
			"sender", senderOf(ac),
			"tool", req.Tool,
			"reason", reason,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toolCheckResponse{Allowed: allowed, Reason: reason})
}

// remember stores a routed decision until its outcome report arrives.
func (h *Handler) remember(reqID, senderID string, d routing.Decision) {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) >= maxPending {
		h.sweepLocked(now)
	}
	h.pending[reqID] = pendingDecision{senderID: senderID, decision: d, at: now}
}

func (h *Handler) take(reqID string) (pendingDecision, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[reqID]
	if !ok || time.Since(p.at) > pendingTTL {
		delete(h.pending, reqID)
		return pendingDecision{}, false
	}
	delete(h.pending, reqID)
	return p, true
}

// sweepLocked drops expired entries, then the oldest survivors if the table
// is still full. Must be called with h.mu held.
func (h *Handler) sweepLocked(now time.Time) {
	for id, p := range h.pending {
		if now.Sub(p.at) > pendingTTL {
			delete(h.pending, id)
		}
	}
	for len(h.pending) >= maxPending {
		oldestID := ""
		var oldest time.Time
		for id, p := range h.pending {
			if oldestID == "" || p.at.Before(oldest) {
				oldestID, oldest = id, p.at
			}
		}
		delete(h.pending, oldestID)
	}
}

// requestID reads the id stamped by middleware, minting one if absent so
// every response carries an id.
func requestID(w http.ResponseWriter) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	w.Header().Set("X-Request-ID", id)
	return id
}

// profileOf never returns nil: an absent or incomplete context degrades to
// the anonymous defaults.
func profileOf(ac *auth.Context) *profile.Profile {
	if ac != nil && ac.Profile != nil {
		return ac.Profile
	}
	anon := profile.Defaults(profile.LevelAnonymous)
	return &anon
}

func senderOf(ac *auth.Context) string {
	if ac != nil && ac.SenderID != "" {
		return ac.SenderID
	}
	return "anonymous"
}

// estimateTokens sizes the input at roughly four characters per token.
func estimateTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total / 4
}

// outputCap resolves the requested max_tokens against the profile's output
// cap; zero cap means unlimited.
func outputCap(requested *int, limit int) int {
	out := 0
	if requested != nil && *requested > 0 {
		out = *requested
	}
	if limit > 0 && (out == 0 || out > limit) {
		out = limit
	}
	return out
}
