package routing

import "fmt"

// Strategy picks a model among a tier's eligible candidates.
type Strategy int

const (
	// StrategyFirst takes the first eligible model in preference order.
	StrategyFirst Strategy = iota
	// StrategyRoundRobin rotates across eligible models.
	StrategyRoundRobin
	// StrategyCheapest is currently equivalent to StrategyFirst because
	// cost is tracked per tier, not per model.
	StrategyCheapest
	// StrategyRandom picks uniformly at random.
	StrategyRandom
)

func (s Strategy) String() string {
	switch s {
	case StrategyFirst:
		return "first"
	case StrategyRoundRobin:
		return "round_robin"
	case StrategyCheapest:
		return "cheapest"
	case StrategyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "first":
		return StrategyFirst, nil
	case "round_robin":
		return StrategyRoundRobin, nil
	case "cheapest":
		return StrategyCheapest, nil
	case "random":
		return StrategyRandom, nil
	default:
		return StrategyFirst, fmt.Errorf("unknown selection strategy %q", s)
	}
}
