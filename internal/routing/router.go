// Package routing turns (request, task complexity, capability profile) into
// a provider/model selection, applying tier ceilings, escalation, budget
// reservation, and fallback policy.
package routing

import (
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/af-corp/tiergate/internal/auth"
	"github.com/af-corp/tiergate/internal/profile"
)

// anonymousSender names the ledger/window key used when no identity exists.
const anonymousSender = "anonymous"

// EscalationConfig is the global escalation policy.
type EscalationConfig struct {
	Enabled bool
	// MaxTiersAbove bounds how far above a sender's ceiling escalation may
	// search.
	MaxTiersAbove int
}

// Config assembles the router's immutable routing tables.
type Config struct {
	// Tiers in cheapest-first order.
	Tiers      []Tier
	Strategy   Strategy
	Escalation EscalationConfig
	// FallbackModel is the global last-resort model. It is subject to the
	// same max-tier ceiling and deny-list checks as ordinary selection.
	FallbackModel string
}

// Request carries what the router needs from one inbound request.
type Request struct {
	// Auth is the server-side identity; nil resolves to the anonymous
	// default profile, never anything higher.
	Auth *auth.Context
	// Model is a manual model override, honored only when the profile
	// permits overrides.
	Model string
	// EstimatedTokens sizes the work for cost estimation; zero means one
	// unit of work.
	EstimatedTokens int
}

// Router is the tiered routing engine. It is safe for concurrent use and
// performs no blocking I/O; budget and rate state are reached through the
// injected interfaces.
type Router struct {
	tiers         []Tier
	rank          map[string]int
	modelTier     map[string]int // model identifier -> rank of first tier listing it
	strategy      Strategy
	escalation    EscalationConfig
	fallbackModel string

	costs  CostReserver
	rates  AdmissionLimiter
	logger *slog.Logger

	rr atomic.Uint64
}

// NewRouter builds a router over an already-validated config.
func NewRouter(cfg Config, costs CostReserver, rates AdmissionLimiter, logger *slog.Logger) *Router {
	if costs == nil {
		costs = NopCost{}
	}
	if rates == nil {
		rates = NopLimiter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		tiers:         cfg.Tiers,
		rank:          make(map[string]int, len(cfg.Tiers)),
		modelTier:     make(map[string]int),
		strategy:      cfg.Strategy,
		escalation:    cfg.Escalation,
		fallbackModel: cfg.FallbackModel,
		costs:         costs,
		rates:         rates,
		logger:        logger,
	}
	for i, t := range cfg.Tiers {
		r.rank[t.Name] = i
		for _, m := range t.Models {
			if _, seen := r.modelTier[m]; !seen {
				r.modelTier[m] = i
			}
		}
	}
	return r
}

// TierRank returns a tier's ordinal position (0 = cheapest), or -1 for an
// unknown name. It satisfies profile.TierRanker.
func (r *Router) TierRank(name string) int {
	if i, ok := r.rank[name]; ok {
		return i
	}
	return -1
}

// Route produces a routing decision for one request. It never fails: every
// exit path returns a Decision, with an empty selection and a reason when no
// viable route exists.
func (r *Router) Route(req *Request, complexity float64) Decision {
	prof, senderID := r.identity(req)

	if complexity < 0 {
		complexity = 0
	}
	if complexity > 1 {
		complexity = 1
	}

	maxRank := r.ceilingRank(prof.MaxTier)

	// Admission gate before any routing work.
	if !r.rates.Check(senderID, prof.RateLimit) {
		if fb, fbRank, ok := r.fallbackWithin(prof, maxRank); ok {
			return Decision{
				Provider: providerOf(fb),
				Model:    fb,
				Tier:     r.tiers[fbRank].Name,
				Reason:   "rate limited; routed to fallback model",
			}
		}
		return Decision{Reason: "rate limited"}
	}

	if maxRank < 0 {
		// Nothing permitted and the fallback is outside a nonexistent
		// ceiling by definition.
		return Decision{Reason: "no permitted tiers for profile"}
	}

	// Manual model override, when the profile allows it and the model
	// passes list and ceiling checks. An unroutable override is ignored
	// rather than trusted.
	if req.Model != "" && prof.AllowModelOverride && prof.ModelPermitted(req.Model) {
		if tr, ok := r.modelTier[req.Model]; ok && tr <= maxRank {
			est := r.estimate(tr, req)
			res := r.costs.Reserve(senderID, est, prof.DailyBudgetUSD, prof.MonthlyBudgetUSD)
			if res.Allowed() {
				return Decision{
					Provider:         providerOf(req.Model),
					Model:            req.Model,
					Tier:             r.tiers[tr].Name,
					Reason:           "manual model override",
					EstimatedCostUSD: est,
					Reserved:         true,
				}
			}
		}
	}

	// Tier selection: highest-ordinal permitted tier covering the
	// complexity; ranges overlap and quality wins when allowed.
	selected := -1
	for i := maxRank; i >= 0; i-- {
		if r.tiers[i].Covers(complexity) {
			selected = i
			break
		}
	}

	escalated := false
	if selected < 0 {
		selected, escalated = r.escalate(prof, maxRank, complexity)
	}
	if selected < 0 {
		// Graceful degradation: best permitted tier even though its range
		// does not cover the complexity.
		selected = maxRank
	}

	chosen, est, reserved, constrained := r.reserveDown(senderID, prof, selected, maxRank, req)
	if chosen != selected {
		escalated = false
	}

	model, modelRank, est, reserved := r.selectModel(senderID, prof, chosen, maxRank, est, reserved, req)
	if model == "" {
		return Decision{
			Reason:            "no viable model after filtering and fallback chain",
			BudgetConstrained: constrained,
		}
	}
	if modelRank != chosen {
		constrained = constrained || modelRank < chosen
		escalated = escalated && modelRank == selected
	}

	d := Decision{
		Provider:          providerOf(model),
		Model:             model,
		Tier:              r.tiers[modelRank].Name,
		Reason:            "ok",
		EstimatedCostUSD:  est,
		Escalated:         escalated,
		BudgetConstrained: constrained,
		Reserved:          reserved,
	}
	switch {
	case escalated:
		d.Reason = "escalated above tier ceiling"
	case constrained:
		d.Reason = "budget constrained; downgraded tier"
	}
	return d
}

// RecordOutcome reconciles a decision's reservation with the observed cost.
// Decisions that carried no reservation still have their actual spend
// recorded.
func (r *Router) RecordOutcome(senderID string, d Decision, actualCost float64) {
	if senderID == "" {
		senderID = anonymousSender
	}
	est := d.EstimatedCostUSD
	if !d.Reserved {
		est = 0
	}
	if est == 0 && actualCost <= 0 {
		return
	}
	r.costs.Reconcile(senderID, est, actualCost)
}

// identity resolves the request to a profile and sender key, substituting
// the anonymous defaults when the auth context is absent or incomplete.
func (r *Router) identity(req *Request) (*profile.Profile, string) {
	anon := profile.Defaults(profile.LevelAnonymous)
	if req == nil || req.Auth == nil {
		return &anon, anonymousSender
	}
	prof := req.Auth.Profile
	if prof == nil {
		prof = &anon
	}
	senderID := req.Auth.SenderID
	if senderID == "" {
		senderID = anonymousSender
	}
	return prof, senderID
}

// ceilingRank maps a profile's max tier name to the highest permitted
// ordinal. Empty means no ceiling; an unknown name permits nothing.
func (r *Router) ceilingRank(maxTier string) int {
	if maxTier == "" {
		return len(r.tiers) - 1
	}
	if i, ok := r.rank[maxTier]; ok {
		return i
	}
	return -1
}

// escalate searches above the ceiling when policy allows it, bounded by
// MaxTiersAbove, preferring the highest-ordinal covering tier.
func (r *Router) escalate(prof *profile.Profile, maxRank int, complexity float64) (int, bool) {
	if !prof.AllowEscalation || !r.escalation.Enabled {
		return -1, false
	}
	if complexity <= prof.EscalationThreshold {
		return -1, false
	}
	top := maxRank + r.escalation.MaxTiersAbove
	if top > len(r.tiers)-1 {
		top = len(r.tiers) - 1
	}
	for i := top; i > maxRank; i-- {
		if r.tiers[i].Covers(complexity) {
			return i, true
		}
	}
	return -1, false
}

// reserveDown attempts a budget reservation at the selected tier and walks
// down through cheaper permitted tiers on refusal. The cheapest tier is a
// soft floor: when even it is refused, it is used unreserved and the
// decision is flagged budget-constrained.
func (r *Router) reserveDown(senderID string, prof *profile.Profile, selected, maxRank int, req *Request) (chosen int, est float64, reserved, constrained bool) {
	candidates := r.walkDown(selected, maxRank)
	for _, i := range candidates {
		e := r.estimate(i, req)
		res := r.costs.Reserve(senderID, e, prof.DailyBudgetUSD, prof.MonthlyBudgetUSD)
		if res.Allowed() {
			return i, e, true, i != selected
		}
		r.logger.Debug("budget reservation refused",
			"sender", senderID,
			"tier", r.tiers[i].Name,
			"estimated_cost_usd", e,
			"result", res.String(),
		)
	}
	floor := candidates[len(candidates)-1]
	return floor, r.estimate(floor, req), false, true
}

// walkDown lists candidate tier ranks richest to cheapest: the selection
// itself, then every permitted tier below it. Tiers above the ceiling other
// than an escalated selection are never candidates.
func (r *Router) walkDown(selected, maxRank int) []int {
	out := []int{selected}
	start := selected - 1
	if start > maxRank {
		start = maxRank
	}
	for i := start; i >= 0; i-- {
		out = append(out, i)
	}
	return out
}

// selectModel picks a model from the chosen tier, running the fallback
// chain when filtering leaves the tier empty: next lower permitted tier,
// then the global fallback model inside the ceiling, then nothing. Tier
// changes after reservation are reconciled to the new tier's estimate.
func (r *Router) selectModel(senderID string, prof *profile.Profile, chosen, maxRank int, est float64, reserved bool, req *Request) (string, int, float64, bool) {
	for _, i := range r.walkDown(chosen, maxRank) {
		model := r.pickFrom(r.tiers[i], prof)
		if model == "" {
			continue
		}
		if i != chosen && reserved {
			newEst := r.estimate(i, req)
			r.costs.Reconcile(senderID, est, newEst)
			est = newEst
		} else if i != chosen {
			est = r.estimate(i, req)
		}
		return model, i, est, reserved
	}

	if fb, fbRank, ok := r.fallbackWithin(prof, maxRank); ok {
		if reserved {
			newEst := r.estimate(fbRank, req)
			r.costs.Reconcile(senderID, est, newEst)
			est = newEst
		} else {
			est = r.estimate(fbRank, req)
		}
		return fb, fbRank, est, reserved
	}

	if reserved {
		// Nothing routable: release the reservation entirely.
		r.costs.Reconcile(senderID, est, 0)
	}
	return "", -1, 0, false
}

// pickFrom filters a tier's models through the profile's allow/deny lists
// (deny wins) and applies the selection strategy.
func (r *Router) pickFrom(t Tier, prof *profile.Profile) string {
	var eligible []string
	for _, m := range t.Models {
		if prof.ModelPermitted(m) {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		return ""
	}
	switch r.strategy {
	case StrategyRoundRobin:
		return eligible[int((r.rr.Add(1)-1)%uint64(len(eligible)))]
	case StrategyRandom:
		return eligible[rand.Intn(len(eligible))]
	default: // first, cheapest
		return eligible[0]
	}
}

// fallbackWithin returns the global fallback model when one is configured,
// belongs to a known tier at or below the ceiling, and survives the
// profile's deny list. The fallback is never an escape hatch past the
// ceiling.
func (r *Router) fallbackWithin(prof *profile.Profile, maxRank int) (string, int, bool) {
	if r.fallbackModel == "" {
		return "", -1, false
	}
	tr, ok := r.modelTier[r.fallbackModel]
	if !ok || tr > maxRank {
		return "", -1, false
	}
	if !prof.ModelPermitted(r.fallbackModel) {
		return "", -1, false
	}
	return r.fallbackModel, tr, true
}

// estimate prices one request at a tier: unit cost per thousand tokens of
// estimated work, minimum one unit.
func (r *Router) estimate(rank int, req *Request) float64 {
	units := 1.0
	if req != nil && req.EstimatedTokens > 1000 {
		units = float64(req.EstimatedTokens) / 1000
	}
	return r.tiers[rank].UnitCostUSD * units
}
