package config

import (
	"fmt"

	"github.com/af-corp/tiergate/internal/profile"
)

// PermissionsConfig is the layered permission surface. The workspace layer
// comes from a project-level file and is ceiling-enforced by the resolver
// against the global layer.
type PermissionsConfig struct {
	// OperatorChannel names the local console channel whose senders
	// default to operator level. Empty disables the rule.
	OperatorChannel string `yaml:"operator_channel"`

	Global    *profile.Override            `yaml:"global"`
	Workspace *profile.Override            `yaml:"workspace"`
	Senders   map[string]*profile.Override `yaml:"senders"`
	Channels  map[string]*profile.Override `yaml:"channels"`

	// Tools carries per-tool gating metadata for the downstream tool
	// dispatcher.
	Tools map[string]ToolPolicy `yaml:"tools"`
}

// ToolPolicy is optional per-tool gating metadata beyond the profile's
// allow/deny lists.
type ToolPolicy struct {
	MinLevel int `yaml:"min_level"`
	// RequiredExtension names an extension-permission key the profile must
	// carry for the tool to be invocable.
	RequiredExtension string `yaml:"required_extension"`
}

func (c *PermissionsConfig) Validate() error {
	if err := validateOverride("global", c.Global); err != nil {
		return err
	}
	if err := validateOverride("workspace", c.Workspace); err != nil {
		return err
	}
	for id, o := range c.Senders {
		if err := validateOverride(fmt.Sprintf("senders.%s", id), o); err != nil {
			return err
		}
	}
	for ch, o := range c.Channels {
		if err := validateOverride(fmt.Sprintf("channels.%s", ch), o); err != nil {
			return err
		}
	}
	for name, tp := range c.Tools {
		if !profile.Level(tp.MinLevel).Valid() {
			return fmt.Errorf("tools.%s: min_level %d out of range [0,2]", name, tp.MinLevel)
		}
	}
	return nil
}

func validateOverride(where string, o *profile.Override) error {
	if o == nil {
		return nil
	}
	if o.Level != nil && !profile.Level(*o.Level).Valid() {
		return fmt.Errorf("%s: level %d out of range [0,2]", where, *o.Level)
	}
	if o.EscalationThreshold != nil && (*o.EscalationThreshold < 0 || *o.EscalationThreshold > 1) {
		return fmt.Errorf("%s: escalation_threshold %v out of range [0,1]", where, *o.EscalationThreshold)
	}
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"max_input_tokens", o.MaxInputTokens},
		{"max_output_tokens", o.MaxOutputTokens},
		{"rate_limit", o.RateLimit},
	} {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s: %s must be non-negative", where, f.name)
		}
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"daily_budget_usd", o.DailyBudgetUSD},
		{"monthly_budget_usd", o.MonthlyBudgetUSD},
	} {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s: %s must be non-negative", where, f.name)
		}
	}
	for _, list := range [][]string{o.AllowedModels, o.DeniedModels, o.AllowedTools, o.DeniedTools} {
		for _, p := range list {
			if !profile.ValidPattern(p) {
				return fmt.Errorf("%s: malformed pattern %q", where, p)
			}
		}
	}
	return nil
}

// Layers converts the config into the resolver's layer stack.
func (c *PermissionsConfig) Layers() profile.Layers {
	return profile.Layers{
		Global:    c.Global,
		Workspace: c.Workspace,
		Senders:   c.Senders,
		Channels:  c.Channels,
	}
}
