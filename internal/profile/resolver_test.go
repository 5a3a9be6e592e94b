package profile

import (
	"testing"
)

func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

// rankFor orders the three-tier test vocabulary: free < standard < premium.
func rankFor(name string) int {
	switch name {
	case "free":
		return 0
	case "standard":
		return 1
	case "premium":
		return 2
	}
	return -1
}

func TestResolve_UnknownSenderIsAnonymous(t *testing.T) {
	r := NewResolver(Layers{}, "", rankFor)
	p := r.Resolve("nobody", "http", false)

	if p.Level != LevelAnonymous {
		t.Errorf("expected anonymous, got %s", p.Level)
	}
	if p.MaxTier != "free" {
		t.Errorf("expected free ceiling, got %q", p.MaxTier)
	}
	if p.AllowStreaming {
		t.Error("anonymous should not stream")
	}
	if len(p.AllowedTools) != 0 {
		t.Errorf("anonymous should have no tools, got %v", p.AllowedTools)
	}
}

func TestResolve_OutOfRangeLevelResolvesDown(t *testing.T) {
	layers := Layers{
		Senders: map[string]*Override{
			"weird": {Level: intPtr(7)},
			"neg":   {Level: intPtr(-3)},
		},
	}
	r := NewResolver(layers, "", rankFor)

	for _, id := range []string{"weird", "neg"} {
		p := r.Resolve(id, "http", false)
		if p.Level != LevelAnonymous {
			t.Errorf("sender %q: out-of-range level resolved to %s, want anonymous", id, p.Level)
		}
	}
}

func TestResolve_AllowListMatchIsAuthenticated(t *testing.T) {
	r := NewResolver(Layers{}, "", rankFor)
	p := r.Resolve("keyed-sender", "http", true)

	if p.Level != LevelAuthenticated {
		t.Errorf("expected authenticated, got %s", p.Level)
	}
	if p.MaxTier != "standard" {
		t.Errorf("expected standard ceiling, got %q", p.MaxTier)
	}
}

func TestResolve_OperatorChannel(t *testing.T) {
	r := NewResolver(Layers{}, "console", rankFor)

	p := r.Resolve("anyone", "console", false)
	if p.Level != LevelOperator {
		t.Errorf("console sender should be operator, got %s", p.Level)
	}
	if p.MaxTier != "" {
		t.Errorf("operator should have no tier ceiling, got %q", p.MaxTier)
	}

	p = r.Resolve("anyone", "http", false)
	if p.Level != LevelAnonymous {
		t.Errorf("non-console sender should be anonymous, got %s", p.Level)
	}
}

func TestResolve_ExplicitLevelBeatsAllowList(t *testing.T) {
	layers := Layers{
		Senders: map[string]*Override{
			"demoted": {Level: intPtr(0)},
		},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("demoted", "http", true)
	if p.Level != LevelAnonymous {
		t.Errorf("explicit sender level should win over allow-list, got %s", p.Level)
	}
}

func TestResolve_SenderBeatsChannel(t *testing.T) {
	layers := Layers{
		Channels: map[string]*Override{
			"webhook": {RateLimit: intPtr(5), MaxTier: strPtr("free")},
		},
		Senders: map[string]*Override{
			"vip": {RateLimit: intPtr(100)},
		},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("vip", "webhook", false)
	if p.RateLimit != 100 {
		t.Errorf("per-sender rate limit should win, got %d", p.RateLimit)
	}
	if p.MaxTier != "free" {
		t.Errorf("channel max tier should survive where sender is silent, got %q", p.MaxTier)
	}
}

func TestResolve_GlobalThenWorkspaceOrder(t *testing.T) {
	layers := Layers{
		Global:    &Override{RateLimit: intPtr(50)},
		Workspace: &Override{RateLimit: intPtr(20)},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("x", "http", true)
	if p.RateLimit != 20 {
		t.Errorf("workspace should layer over global, got %d", p.RateLimit)
	}
}

func TestResolve_WorkspaceCannotWiden(t *testing.T) {
	layers := Layers{
		Global: &Override{
			RateLimit:      intPtr(30),
			DailyBudgetUSD: floatPtr(5),
			MaxTier:        strPtr("standard"),
		},
		Workspace: &Override{
			Level:          intPtr(2),
			RateLimit:      intPtr(1000),
			DailyBudgetUSD: floatPtr(500),
			MaxTier:        strPtr("premium"),
		},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("x", "http", true)
	if p.Level != LevelAuthenticated {
		t.Errorf("workspace must not raise level, got %s", p.Level)
	}
	if p.RateLimit != 30 {
		t.Errorf("workspace must not raise rate limit past global, got %d", p.RateLimit)
	}
	if p.DailyBudgetUSD != 5 {
		t.Errorf("workspace must not raise budget past global, got %v", p.DailyBudgetUSD)
	}
	if p.MaxTier != "standard" {
		t.Errorf("workspace must not raise max tier past global, got %q", p.MaxTier)
	}
}

func TestResolve_WorkspaceZeroMeansUnlimitedIsClamped(t *testing.T) {
	// Workspace asks for "unlimited" (zero); global has a finite cap, so the
	// finite cap wins.
	layers := Layers{
		Global:    &Override{RateLimit: intPtr(30)},
		Workspace: &Override{RateLimit: intPtr(0)},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("x", "http", true)
	if p.RateLimit != 30 {
		t.Errorf("unlimited workspace limit should clamp to global, got %d", p.RateLimit)
	}
}

func TestResolve_WorkspaceCanRestrict(t *testing.T) {
	layers := Layers{
		Workspace: &Override{
			RateLimit: intPtr(2),
			MaxTier:   strPtr("free"),
		},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("x", "http", true)
	if p.RateLimit != 2 {
		t.Errorf("workspace restriction should apply, got %d", p.RateLimit)
	}
	if p.MaxTier != "free" {
		t.Errorf("workspace tier restriction should apply, got %q", p.MaxTier)
	}
}

func TestResolve_WorkspaceToolIntersection(t *testing.T) {
	layers := Layers{
		Global:    &Override{AllowedTools: []string{"search", "calc"}},
		Workspace: &Override{AllowedTools: []string{"calc", "shell_exec"}},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("x", "http", true)
	if len(p.AllowedTools) != 1 || p.AllowedTools[0] != "calc" {
		t.Errorf("expected tool intersection [calc], got %v", p.AllowedTools)
	}
}

func TestResolve_WorkspaceEscalationDenied(t *testing.T) {
	layers := Layers{
		Global:    &Override{AllowEscalation: boolPtr(false)},
		Workspace: &Override{AllowEscalation: boolPtr(true)},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("x", "http", true)
	if p.AllowEscalation {
		t.Error("workspace must not enable escalation that global denies")
	}
}

func TestResolve_ClampsNegativeValues(t *testing.T) {
	layers := Layers{
		Senders: map[string]*Override{
			"broken": {
				RateLimit:           intPtr(-5),
				MaxInputTokens:      intPtr(-1),
				EscalationThreshold: floatPtr(3.0),
				DailyBudgetUSD:      floatPtr(-2),
			},
		},
	}
	r := NewResolver(layers, "", rankFor)

	p := r.Resolve("broken", "http", false)
	if p.RateLimit != 0 {
		t.Errorf("negative rate limit should clamp to 0, got %d", p.RateLimit)
	}
	if p.MaxInputTokens != 0 {
		t.Errorf("negative token cap should clamp to 0, got %d", p.MaxInputTokens)
	}
	if p.EscalationThreshold != 1 {
		t.Errorf("threshold should clamp to 1, got %v", p.EscalationThreshold)
	}
	if p.DailyBudgetUSD != 0 {
		t.Errorf("negative budget should clamp to 0, got %v", p.DailyBudgetUSD)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	layers := Layers{
		Global: &Override{DeniedModels: []string{"*-experimental"}},
		Senders: map[string]*Override{
			"s1": {MaxTier: strPtr("premium"), Extensions: map[string]string{"fs.write": "1"}},
		},
	}
	r := NewResolver(layers, "", rankFor)

	a := r.Resolve("s1", "http", true)
	b := r.Resolve("s1", "http", true)
	if a.MaxTier != b.MaxTier || a.Level != b.Level || len(a.DeniedModels) != len(b.DeniedModels) {
		t.Error("resolution should be deterministic")
	}
}
