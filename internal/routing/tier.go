package routing

import "strings"

// Tier is a named bucket of interchangeable models sharing a cost/capability
// profile and a complexity range. Tiers are configured once at startup,
// cheapest first, and are immutable thereafter; a tier's ordinal position is
// its index in that list.
type Tier struct {
	Name   string
	Models []string // provider/model identifiers, preference order

	// Inclusive complexity range in [0,1]. Ranges of adjacent tiers
	// intentionally overlap.
	MinComplexity float64
	MaxComplexity float64

	// UnitCostUSD is the approximate cost per thousand tokens of work.
	UnitCostUSD float64

	MaxContext int
}

// Covers reports whether the tier's complexity range includes c.
func (t Tier) Covers(c float64) bool {
	return c >= t.MinComplexity && c <= t.MaxComplexity
}

// providerOf extracts the provider part of a "provider/model" identifier.
func providerOf(model string) string {
	if i := strings.IndexByte(model, '/'); i > 0 {
		return model[:i]
	}
	return ""
}
