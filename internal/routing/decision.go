package routing

// Decision is the outcome of one routing attempt. Routing is infallible:
// every request yields a Decision, and the absence of a usable route is an
// empty Model plus an explanatory Reason, never an error.
type Decision struct {
	// Provider and Model identify the selection. Model holds the full
	// "provider/model" identifier; both are empty when no route exists.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Reason string `json:"reason"`
	Tier   string `json:"tier,omitempty"`

	EstimatedCostUSD float64 `json:"estimated_cost_usd,omitempty"`

	Escalated         bool `json:"escalated"`
	BudgetConstrained bool `json:"budget_constrained"`

	// Reserved records whether a budget reservation backs EstimatedCostUSD;
	// RecordOutcome uses it to reconcile correctly.
	Reserved bool `json:"-"`
}

// Routed reports whether the decision selected a model.
func (d Decision) Routed() bool { return d.Model != "" }
