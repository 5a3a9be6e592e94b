// Package toolgate gates tool invocation against a resolved capability
// profile. It sits in front of whatever sandboxing the tools themselves
// perform and is independent of it.
package toolgate

import (
	"fmt"

	"github.com/af-corp/tiergate/internal/profile"
)

// Policy is optional per-tool gating metadata beyond the profile's
// allow/deny lists.
type Policy struct {
	// MinLevel is the lowest permission level allowed to invoke the tool.
	MinLevel profile.Level
	// RequiredExtension names an extension-permission key the profile
	// must carry. Empty means none required.
	RequiredExtension string
}

// Gate decides whether a profile may invoke a named tool.
type Gate struct {
	policies map[string]Policy
}

// NewGate builds a gate from per-tool policies; nil is a valid empty set.
func NewGate(policies map[string]Policy) *Gate {
	return &Gate{policies: policies}
}

// Check reports whether the profile may invoke the tool, with a
// human-readable reason on denial. Deny-list entries win over any
// allow-list, including a wildcard allow-all.
func (g *Gate) Check(prof *profile.Profile, tool string) (bool, string) {
	if prof == nil {
		return false, "no capability profile"
	}
	if !prof.ToolPermitted(tool) {
		return false, fmt.Sprintf("tool %q not permitted by profile", tool)
	}
	p, ok := g.policies[tool]
	if !ok {
		return true, ""
	}
	if prof.Level < p.MinLevel {
		return false, fmt.Sprintf("tool %q requires level %s", tool, p.MinLevel)
	}
	if p.RequiredExtension != "" {
		if _, has := prof.Extensions[p.RequiredExtension]; !has {
			return false, fmt.Sprintf("tool %q requires extension permission %q", tool, p.RequiredExtension)
		}
	}
	return true, ""
}
