package config

import (
	"fmt"

	"github.com/af-corp/tiergate/internal/routing"
)

// TiersConfig is the routing table: the tier list in cheapest-first order
// plus selection, escalation, and fallback policy.
type TiersConfig struct {
	Tiers         []TierConfig     `yaml:"tiers"`
	Strategy      string           `yaml:"strategy"`
	Escalation    EscalationConfig `yaml:"escalation"`
	FallbackModel string           `yaml:"fallback_model"`
}

type TierConfig struct {
	Name          string   `yaml:"name"`
	Models        []string `yaml:"models"`
	MinComplexity float64  `yaml:"min_complexity"`
	MaxComplexity float64  `yaml:"max_complexity"`
	UnitCostUSD   float64  `yaml:"unit_cost_usd"`
	MaxContext    int      `yaml:"max_context"`
}

type EscalationConfig struct {
	Enabled bool `yaml:"enabled"`
	// DefaultThreshold seeds profiles that carry no explicit escalation
	// threshold.
	DefaultThreshold float64 `yaml:"default_threshold"`
	MaxTiersAbove    int     `yaml:"max_tiers_above"`
}

func (c *TiersConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("tiers: at least one tier is required")
	}
	seen := make(map[string]bool, len(c.Tiers))
	for i, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("tiers[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tiers[%d]: duplicate tier name %q", i, t.Name)
		}
		seen[t.Name] = true
		if len(t.Models) == 0 {
			return fmt.Errorf("tier %q: at least one model is required", t.Name)
		}
		if t.MinComplexity < 0 || t.MaxComplexity > 1 || t.MinComplexity > t.MaxComplexity {
			return fmt.Errorf("tier %q: complexity range [%v,%v] invalid", t.Name, t.MinComplexity, t.MaxComplexity)
		}
		if t.UnitCostUSD < 0 {
			return fmt.Errorf("tier %q: unit_cost_usd must be non-negative", t.Name)
		}
		if t.MaxContext < 0 {
			return fmt.Errorf("tier %q: max_context must be non-negative", t.Name)
		}
	}
	if _, err := routing.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if c.Escalation.DefaultThreshold < 0 || c.Escalation.DefaultThreshold > 1 {
		return fmt.Errorf("escalation.default_threshold %v out of range [0,1]", c.Escalation.DefaultThreshold)
	}
	if c.Escalation.MaxTiersAbove < 0 {
		return fmt.Errorf("escalation.max_tiers_above must be non-negative")
	}
	if c.FallbackModel != "" && !c.modelKnown(c.FallbackModel) {
		return fmt.Errorf("fallback_model %q does not belong to any tier", c.FallbackModel)
	}
	return nil
}

func (c *TiersConfig) modelKnown(model string) bool {
	for _, t := range c.Tiers {
		for _, m := range t.Models {
			if m == model {
				return true
			}
		}
	}
	return false
}

// RouterConfig converts the validated config into the router's form.
func (c *TiersConfig) RouterConfig() (routing.Config, error) {
	strategy, err := routing.ParseStrategy(c.Strategy)
	if err != nil {
		return routing.Config{}, err
	}
	tiers := make([]routing.Tier, len(c.Tiers))
	for i, t := range c.Tiers {
		tiers[i] = routing.Tier{
			Name:          t.Name,
			Models:        append([]string(nil), t.Models...),
			MinComplexity: t.MinComplexity,
			MaxComplexity: t.MaxComplexity,
			UnitCostUSD:   t.UnitCostUSD,
			MaxContext:    t.MaxContext,
		}
	}
	return routing.Config{
		Tiers:    tiers,
		Strategy: strategy,
		Escalation: routing.EscalationConfig{
			Enabled:       c.Escalation.Enabled,
			MaxTiersAbove: c.Escalation.MaxTiersAbove,
		},
		FallbackModel: c.FallbackModel,
	}, nil
}
