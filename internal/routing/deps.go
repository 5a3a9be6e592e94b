package routing

import "github.com/af-corp/tiergate/internal/budget"

// CostReserver is the slice of the cost tracker the router needs. The
// budget.Tracker implements it; NopCost stands in for isolation tests.
type CostReserver interface {
	Reserve(senderID string, estimatedCost, dailyLimit, monthlyLimit float64) budget.Result
	Reconcile(senderID string, estimatedCost, actualCost float64)
}

// AdmissionLimiter is the slice of the rate limiter the router needs.
type AdmissionLimiter interface {
	Check(senderID string, limit int) bool
}

// NopCost admits every reservation and drops reconciliations.
type NopCost struct{}

func (NopCost) Reserve(string, float64, float64, float64) budget.Result { return budget.ReserveOK }
func (NopCost) Reconcile(string, float64, float64)                      {}

// NopLimiter admits every request.
type NopLimiter struct{}

func (NopLimiter) Check(string, int) bool { return true }
