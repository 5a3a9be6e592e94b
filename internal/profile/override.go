package profile

// Override is a partial capability profile used as one layer of the
// permission stack. A nil pointer field means "unset"; a set field fully
// replaces the base value. List fields replace the base only when non-empty,
// so an empty override list means "no change", not "clear". The extension
// map merges shallowly, override winning per key.
type Override struct {
	Level               *int     `yaml:"level,omitempty" json:"level,omitempty"`
	MaxTier             *string  `yaml:"max_tier,omitempty" json:"max_tier,omitempty"`
	AllowedModels       []string `yaml:"allowed_models,omitempty" json:"allowed_models,omitempty"`
	DeniedModels        []string `yaml:"denied_models,omitempty" json:"denied_models,omitempty"`
	AllowedTools        []string `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty"`
	DeniedTools         []string `yaml:"denied_tools,omitempty" json:"denied_tools,omitempty"`
	MaxInputTokens      *int     `yaml:"max_input_tokens,omitempty" json:"max_input_tokens,omitempty"`
	MaxOutputTokens     *int     `yaml:"max_output_tokens,omitempty" json:"max_output_tokens,omitempty"`
	RateLimit           *int     `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	AllowStreaming      *bool    `yaml:"allow_streaming,omitempty" json:"allow_streaming,omitempty"`
	AllowEscalation     *bool    `yaml:"allow_escalation,omitempty" json:"allow_escalation,omitempty"`
	EscalationThreshold *float64 `yaml:"escalation_threshold,omitempty" json:"escalation_threshold,omitempty"`
	AllowModelOverride  *bool    `yaml:"allow_model_override,omitempty" json:"allow_model_override,omitempty"`
	DailyBudgetUSD      *float64 `yaml:"daily_budget_usd,omitempty" json:"daily_budget_usd,omitempty"`
	MonthlyBudgetUSD    *float64 `yaml:"monthly_budget_usd,omitempty" json:"monthly_budget_usd,omitempty"`
	Extensions          map[string]string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

// applyTo merges the override into p. Safe to call on a nil override.
func (o *Override) applyTo(p *Profile) {
	if o == nil {
		return
	}
	if o.Level != nil {
		// Out-of-range configured levels resolve to anonymous, never operator.
		p.Level = clampLevel(*o.Level)
	}
	if o.MaxTier != nil {
		p.MaxTier = *o.MaxTier
	}
	if len(o.AllowedModels) > 0 {
		p.AllowedModels = append([]string(nil), o.AllowedModels...)
	}
	if len(o.DeniedModels) > 0 {
		p.DeniedModels = append([]string(nil), o.DeniedModels...)
	}
	if len(o.AllowedTools) > 0 {
		p.AllowedTools = append([]string(nil), o.AllowedTools...)
	}
	if len(o.DeniedTools) > 0 {
		p.DeniedTools = append([]string(nil), o.DeniedTools...)
	}
	if o.MaxInputTokens != nil {
		p.MaxInputTokens = *o.MaxInputTokens
	}
	if o.MaxOutputTokens != nil {
		p.MaxOutputTokens = *o.MaxOutputTokens
	}
	if o.RateLimit != nil {
		p.RateLimit = *o.RateLimit
	}
	if o.AllowStreaming != nil {
		p.AllowStreaming = *o.AllowStreaming
	}
	if o.AllowEscalation != nil {
		p.AllowEscalation = *o.AllowEscalation
	}
	if o.EscalationThreshold != nil {
		p.EscalationThreshold = *o.EscalationThreshold
	}
	if o.AllowModelOverride != nil {
		p.AllowModelOverride = *o.AllowModelOverride
	}
	if o.DailyBudgetUSD != nil {
		p.DailyBudgetUSD = *o.DailyBudgetUSD
	}
	if o.MonthlyBudgetUSD != nil {
		p.MonthlyBudgetUSD = *o.MonthlyBudgetUSD
	}
	if len(o.Extensions) > 0 {
		if p.Extensions == nil {
			p.Extensions = make(map[string]string, len(o.Extensions))
		} else {
			// Copy-on-write so the base layer's map is never mutated.
			merged := make(map[string]string, len(p.Extensions)+len(o.Extensions))
			for k, v := range p.Extensions {
				merged[k] = v
			}
			p.Extensions = merged
		}
		for k, v := range o.Extensions {
			p.Extensions[k] = v
		}
	}
}
