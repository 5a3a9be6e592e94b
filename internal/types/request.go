package types

// RouteRequest is the inbound admission request body. It deliberately
// carries no identity or permission fields: identity is established
// server-side by the identity middleware, and anything identity-shaped a
// client includes in the body is ignored by construction.
type RouteRequest struct {
	// Model requests a manual model override; honored only when the
	// sender's profile permits overrides.
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`

	MaxTokens *int `json:"max_tokens,omitempty"`
	Stream    bool `json:"stream"`

	// Complexity, when set, bypasses the heuristic estimator. Clamped to
	// [0,1] downstream.
	Complexity *float64 `json:"complexity,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}
