package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the tiergate router.
type Metrics struct {
	DecisionTotal        *prometheus.CounterVec
	EscalationTotal      *prometheus.CounterVec
	BudgetRejectionTotal *prometheus.CounterVec
	RateLimitHitTotal    *prometheus.CounterVec
	SpendUSDTotal        *prometheus.CounterVec
	RouteDurationMs      *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on reg (the default
// registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		DecisionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tiergate_decision_total",
			Help: "Total routing decisions, by tier and outcome reason.",
		}, []string{"tier", "reason", "level"}),

		EscalationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tiergate_escalation_total",
			Help: "Total decisions escalated above the sender's tier ceiling.",
		}, []string{"tier"}),

		BudgetRejectionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tiergate_budget_rejection_total",
			Help: "Total budget reservations refused, by dimension.",
		}, []string{"dimension"}),

		RateLimitHitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tiergate_rate_limit_hit_total",
			Help: "Total requests rejected by rate limiting, by scope.",
		}, []string{"scope"}),

		SpendUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tiergate_spend_usd_total",
			Help: "Reconciled spend in USD.",
		}, []string{"tier"}),

		RouteDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiergate_route_duration_ms",
			Help:    "Routing decision latency in milliseconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		}, []string{"outcome"}),
	}
}

// DecisionLabels holds label values for recording one routing decision.
type DecisionLabels struct {
	Tier       string
	Reason     string
	Level      string
	Escalated  bool
	DurationMs float64
	Routed     bool
}

// RecordDecision records metrics for a completed routing decision.
func (m *Metrics) RecordDecision(labels DecisionLabels) {
	tier := labels.Tier
	if tier == "" {
		tier = "none"
	}
	m.DecisionTotal.WithLabelValues(tier, labels.Reason, labels.Level).Inc()
	if labels.Escalated {
		m.EscalationTotal.WithLabelValues(tier).Inc()
	}
	outcome := "routed"
	if !labels.Routed {
		outcome = "unrouted"
	}
	m.RouteDurationMs.WithLabelValues(outcome).Observe(labels.DurationMs)
}

// RecordBudgetRejection counts a refused reservation by dimension.
func (m *Metrics) RecordBudgetRejection(dimension string) {
	m.BudgetRejectionTotal.WithLabelValues(dimension).Inc()
}

// RecordRateLimitHit counts a rate-limited request by scope
// ("sender" or "global").
func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitHitTotal.WithLabelValues(scope).Inc()
}

// RecordSpend adds reconciled spend for a tier.
func (m *Metrics) RecordSpend(tier string, usd float64) {
	if usd <= 0 {
		return
	}
	if tier == "" {
		tier = "none"
	}
	m.SpendUSDTotal.WithLabelValues(tier).Add(usd)
}
