package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/af-corp/tiergate/internal/auth"
	"github.com/af-corp/tiergate/internal/httputil"
	"github.com/af-corp/tiergate/internal/profile"
)

// requireOperator rejects non-operator callers. Admin surfaces are gated on
// the resolved level, never on anything client-supplied.
func (h *Handler) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	reqID := requestID(w)
	ac, _ := auth.FromContext(r.Context())
	prof := profileOf(ac)
	if prof.Level != profile.LevelOperator {
		slog.Warn("admin access denied",
			"request_id", reqID,
			"sender", senderOf(ac),
			"level", prof.Level.String(),
			"path", r.URL.Path,
		)
		httputil.WritePermissionDeniedError(w, reqID, "level", "Operator level required")
		return false
	}
	return true
}

type spendResponse struct {
	Sender           string  `json:"sender,omitempty"`
	SenderDailyUSD   float64 `json:"sender_daily_usd,omitempty"`
	SenderMonthlyUSD float64 `json:"sender_monthly_usd,omitempty"`
	GlobalDailyUSD   float64 `json:"global_daily_usd"`
	GlobalMonthlyUSD float64 `json:"global_monthly_usd"`
}

// Spend handles GET /admin/spend[?sender=...]
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}
	reqID := requestID(w)
	if h.tracker == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Budget tracking is disabled")
		return
	}

	resp := spendResponse{
		GlobalDailyUSD:   h.tracker.GlobalDailySpend(),
		GlobalMonthlyUSD: h.tracker.GlobalMonthlySpend(),
	}
	if sender := r.URL.Query().Get("sender"); sender != "" {
		resp.Sender = sender
		resp.SenderDailyUSD = h.tracker.DailySpend(sender)
		resp.SenderMonthlyUSD = h.tracker.MonthlySpend(sender)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type resetRequest struct {
	Scope string `json:"scope"`
}

// ResetBudget handles POST /admin/budget/reset with {"scope":"daily"|"monthly"}.
func (h *Handler) ResetBudget(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}
	reqID := requestID(w)
	if h.tracker == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Budget tracking is disabled")
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	switch req.Scope {
	case "daily":
		h.tracker.ForceDailyReset()
	case "monthly":
		h.tracker.ForceMonthlyReset()
	default:
		httputil.WriteBadRequestError(w, reqID, `scope must be "daily" or "monthly"`)
		return
	}

	slog.Info("budget reset forced", "request_id", reqID, "scope", req.Scope)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset", "scope": req.Scope})
}

// SaveLedger handles POST /admin/ledger/save: forces a snapshot to disk
// outside the periodic save cadence.
func (h *Handler) SaveLedger(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}
	reqID := requestID(w)
	if h.tracker == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Budget tracking is disabled")
		return
	}

	if err := h.tracker.Save(); err != nil {
		slog.Error("ledger save failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Ledger save failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
}
