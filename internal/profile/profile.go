package profile

// Profile is the fully resolved capability profile for one request.
// It is immutable once returned by the Resolver; callers must not mutate it.
type Profile struct {
	Level Level `json:"level"`

	// MaxTier is the name of the highest tier the sender may use.
	// Empty means no ceiling.
	MaxTier string `json:"max_tier"`

	// Model and tool lists use glob-like patterns. An empty allow-list
	// means "none"; a single "*" means "all". Deny always wins.
	AllowedModels []string `json:"allowed_models"`
	DeniedModels  []string `json:"denied_models"`
	AllowedTools  []string `json:"allowed_tools"`
	DeniedTools   []string `json:"denied_tools"`

	MaxInputTokens  int `json:"max_input_tokens"`
	MaxOutputTokens int `json:"max_output_tokens"`

	// RateLimit is requests per window. Zero means unlimited.
	RateLimit int `json:"rate_limit"`

	AllowStreaming bool `json:"allow_streaming"`

	AllowEscalation     bool    `json:"allow_escalation"`
	EscalationThreshold float64 `json:"escalation_threshold"`

	AllowModelOverride bool `json:"allow_model_override"`

	// Budgets in USD. Zero means unlimited.
	DailyBudgetUSD   float64 `json:"daily_budget_usd"`
	MonthlyBudgetUSD float64 `json:"monthly_budget_usd"`

	// Extensions carries opaque permission keys for downstream consumers.
	// The core never interprets them.
	Extensions map[string]string `json:"extensions,omitempty"`
}

// Defaults returns the built-in profile for a level. These are the lowest
// layer of the override stack and the fallback when no configuration exists.
func Defaults(level Level) Profile {
	switch level {
	case LevelOperator:
		return Profile{
			Level:               LevelOperator,
			MaxTier:             "", // unrestricted
			AllowedModels:       []string{"*"},
			AllowedTools:        []string{"*"},
			MaxInputTokens:      200_000,
			MaxOutputTokens:     32_000,
			RateLimit:           0,
			AllowStreaming:      true,
			AllowEscalation:     true,
			EscalationThreshold: 0.5,
			AllowModelOverride:  true,
			DailyBudgetUSD:      0,
			MonthlyBudgetUSD:    0,
		}
	case LevelAuthenticated:
		return Profile{
			Level:               LevelAuthenticated,
			MaxTier:             "standard",
			AllowedModels:       []string{"*"},
			AllowedTools:        []string{"*"},
			MaxInputTokens:      32_768,
			MaxOutputTokens:     8_192,
			RateLimit:           30,
			AllowStreaming:      true,
			AllowEscalation:     false,
			EscalationThreshold: 0.75,
			AllowModelOverride:  false,
			DailyBudgetUSD:      5,
			MonthlyBudgetUSD:    50,
		}
	default:
		// Anonymous: free tier only, no tools, tight caps.
		return Profile{
			Level:               LevelAnonymous,
			MaxTier:             "free",
			AllowedModels:       []string{"*"},
			AllowedTools:        nil,
			MaxInputTokens:      8_192,
			MaxOutputTokens:     1_024,
			RateLimit:           10,
			AllowStreaming:      false,
			AllowEscalation:     false,
			EscalationThreshold: 1.0,
			AllowModelOverride:  false,
			DailyBudgetUSD:      0.50,
			MonthlyBudgetUSD:    5,
		}
	}
}

// clamp forces every field into its valid range. Called after every merge so
// the resolver's output guarantee holds no matter what the overrides contained.
func (p *Profile) clamp() {
	if !p.Level.Valid() {
		p.Level = LevelAnonymous
	}
	if p.MaxInputTokens < 0 {
		p.MaxInputTokens = 0
	}
	if p.MaxOutputTokens < 0 {
		p.MaxOutputTokens = 0
	}
	if p.RateLimit < 0 {
		p.RateLimit = 0
	}
	if p.EscalationThreshold < 0 {
		p.EscalationThreshold = 0
	}
	if p.EscalationThreshold > 1 {
		p.EscalationThreshold = 1
	}
	if p.DailyBudgetUSD < 0 {
		p.DailyBudgetUSD = 0
	}
	if p.MonthlyBudgetUSD < 0 {
		p.MonthlyBudgetUSD = 0
	}
}
