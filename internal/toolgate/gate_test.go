package toolgate

import (
	"testing"

	"github.com/af-corp/tiergate/internal/profile"
)

func operatorProfile() *profile.Profile {
	p := profile.Defaults(profile.LevelOperator)
	return &p
}

func TestCheck_NilProfileDenied(t *testing.T) {
	g := NewGate(nil)
	allowed, reason := g.Check(nil, "search")
	if allowed {
		t.Error("nil profile must be denied")
	}
	if reason == "" {
		t.Error("denial should carry a reason")
	}
}

func TestCheck_ProfileListGates(t *testing.T) {
	g := NewGate(nil)

	p := profile.Defaults(profile.LevelAnonymous) // no tools at all
	if allowed, _ := g.Check(&p, "search"); allowed {
		t.Error("anonymous profile should have no tools")
	}

	if allowed, _ := g.Check(operatorProfile(), "search"); !allowed {
		t.Error("operator wildcard should allow the tool")
	}
}

func TestCheck_DenyWinsOverWildcard(t *testing.T) {
	g := NewGate(nil)
	p := operatorProfile()
	p.DeniedTools = []string{"shell_exec"}

	if allowed, _ := g.Check(p, "shell_exec"); allowed {
		t.Error("deny list must win over wildcard allow")
	}
}

func TestCheck_MinLevel(t *testing.T) {
	g := NewGate(map[string]Policy{
		"shell_exec": {MinLevel: profile.LevelOperator},
	})

	auth := profile.Defaults(profile.LevelAuthenticated)
	if allowed, reason := g.Check(&auth, "shell_exec"); allowed {
		t.Error("below min level must be denied")
	} else if reason == "" {
		t.Error("denial should carry a reason")
	}

	if allowed, _ := g.Check(operatorProfile(), "shell_exec"); !allowed {
		t.Error("operator should pass the min level")
	}
}

func TestCheck_RequiredExtension(t *testing.T) {
	g := NewGate(map[string]Policy{
		"file_write": {RequiredExtension: "fs.write"},
	})

	p := operatorProfile()
	if allowed, _ := g.Check(p, "file_write"); allowed {
		t.Error("missing extension must be denied")
	}

	p.Extensions = map[string]string{"fs.write": "1"}
	if allowed, _ := g.Check(p, "file_write"); !allowed {
		t.Error("present extension should pass")
	}
}

func TestCheck_UnlistedToolUsesProfileOnly(t *testing.T) {
	g := NewGate(map[string]Policy{"other": {MinLevel: profile.LevelOperator}})

	auth := profile.Defaults(profile.LevelAuthenticated)
	if allowed, _ := g.Check(&auth, "search"); !allowed {
		t.Error("tool without a policy should pass on profile lists alone")
	}
}
