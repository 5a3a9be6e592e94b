package profile

import "math"

// TierRanker maps a tier name to its ordinal position (0 = cheapest).
// It returns -1 for unknown names.
type TierRanker func(name string) int

// Layers holds the four configured override layers, lowest precedence first.
// Built-in level defaults sit below all of them.
//
// Precedence among the two identity-keyed layers is a product decision: the
// per-sender override is applied last and therefore wins over the per-channel
// override wherever both set the same field.
type Layers struct {
	Global    *Override
	Workspace *Override
	Senders   map[string]*Override
	Channels  map[string]*Override
}

// Resolver turns (sender, channel, allow-list membership) into a resolved
// capability profile. It is pure with respect to its configuration: no I/O,
// no side effects, deterministic.
type Resolver struct {
	layers          Layers
	operatorChannel string
	rank            TierRanker
}

// NewResolver builds a resolver. operatorChannel names the local console
// channel whose senders default to operator level; empty disables that rule.
func NewResolver(layers Layers, operatorChannel string, rank TierRanker) *Resolver {
	if rank == nil {
		rank = func(string) int { return -1 }
	}
	return &Resolver{layers: layers, operatorChannel: operatorChannel, rank: rank}
}

// Resolve produces the capability profile for one request. The result always
// satisfies the same range invariants as the built-in defaults.
func (r *Resolver) Resolve(senderID, channel string, allowListMatch bool) Profile {
	sender := r.layers.Senders[senderID]
	chOv := r.layers.Channels[channel]

	level := r.determineLevel(sender, chOv, channel, allowListMatch)

	merged := Defaults(level)
	r.layers.Global.applyTo(&merged)
	r.layers.Workspace.applyTo(&merged)
	chOv.applyTo(&merged)
	sender.applyTo(&merged)

	if r.layers.Workspace != nil {
		// A workspace config file is lower-trust than global config: clamp
		// the security-sensitive fields to the global-only resolution so a
		// project cannot grant itself privileges global never allowed.
		ceiling := Defaults(level)
		r.layers.Global.applyTo(&ceiling)
		r.enforceCeiling(&merged, &ceiling)
	}

	merged.clamp()
	return merged
}

// determineLevel picks the permission level, first match wins: explicit
// per-sender level, explicit per-channel level, allow-list membership,
// operator console channel, anonymous.
func (r *Resolver) determineLevel(sender, channel *Override, channelName string, allowListMatch bool) Level {
	if sender != nil && sender.Level != nil {
		return clampLevel(*sender.Level)
	}
	if channel != nil && channel.Level != nil {
		return clampLevel(*channel.Level)
	}
	if allowListMatch {
		return LevelAuthenticated
	}
	if r.operatorChannel != "" && channelName == r.operatorChannel {
		return LevelOperator
	}
	return LevelAnonymous
}

func (r *Resolver) enforceCeiling(merged, ceiling *Profile) {
	if merged.Level > ceiling.Level {
		merged.Level = ceiling.Level
	}
	if !ceiling.AllowEscalation {
		merged.AllowEscalation = false
	}
	if !wildcardOnly(ceiling.AllowedTools) {
		merged.AllowedTools = intersectTools(merged.AllowedTools, ceiling.AllowedTools)
	}
	merged.RateLimit = clampLimitInt(merged.RateLimit, ceiling.RateLimit)
	merged.DailyBudgetUSD = clampLimitFloat(merged.DailyBudgetUSD, ceiling.DailyBudgetUSD)
	merged.MonthlyBudgetUSD = clampLimitFloat(merged.MonthlyBudgetUSD, ceiling.MonthlyBudgetUSD)
	if r.tierRank(merged.MaxTier) > r.tierRank(ceiling.MaxTier) {
		merged.MaxTier = ceiling.MaxTier
	}
}

// tierRank orders tier names for ceiling comparison. An empty name means
// "no ceiling" and ranks above every real tier; an unknown name ranks below
// every real tier (fail closed).
func (r *Resolver) tierRank(name string) int {
	if name == "" {
		return math.MaxInt
	}
	return r.rank(name)
}

// wildcardOnly reports whether the list is exactly the allow-all wildcard.
func wildcardOnly(list []string) bool {
	return len(list) == 1 && list[0] == "*"
}

// intersectTools keeps only the entries of list that the ceiling list also
// grants. Entries are matched as names against the ceiling's patterns, so a
// workspace cannot smuggle in a broader pattern than global allows.
func intersectTools(list, ceiling []string) []string {
	var kept []string
	for _, t := range list {
		if matchList(ceiling, t) {
			kept = append(kept, t)
		}
	}
	return kept
}

// clampLimitInt caps a numeric limit where zero means unlimited: the merged
// value may not exceed a finite ceiling, and "unlimited" is treated as the
// largest possible value.
func clampLimitInt(merged, ceiling int) int {
	if ceiling == 0 {
		return merged
	}
	if merged == 0 || merged > ceiling {
		return ceiling
	}
	return merged
}

func clampLimitFloat(merged, ceiling float64) float64 {
	if ceiling == 0 {
		return merged
	}
	if merged == 0 || merged > ceiling {
		return ceiling
	}
	return merged
}
