package profile

import (
	"sync"

	"github.com/gobwas/glob"
)

// Compiled patterns are cached process-wide; the pattern vocabulary comes
// from configuration and is small.
var globCache sync.Map // pattern -> glob.Glob

func compiledGlob(pattern string) (glob.Glob, bool) {
	if g, ok := globCache.Load(pattern); ok {
		return g.(glob.Glob), true
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, false
	}
	globCache.Store(pattern, g)
	return g, true
}

// matchList reports whether name matches any pattern in patterns, by exact
// string match or glob. Malformed patterns never match; config validation
// rejects them at load time.
func matchList(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if g, ok := compiledGlob(p); ok && g.Match(name) {
			return true
		}
	}
	return false
}

// ValidPattern reports whether p compiles as a glob pattern.
func ValidPattern(p string) bool {
	_, ok := compiledGlob(p)
	return ok
}

// Permitted applies allow/deny list semantics to a model or tool name:
// deny wins over allow, including over a wildcard allow-all; an empty
// allow-list permits nothing.
func Permitted(allow, deny []string, name string) bool {
	if matchList(deny, name) {
		return false
	}
	return matchList(allow, name)
}

// ModelPermitted checks name against the profile's model lists.
func (p *Profile) ModelPermitted(name string) bool {
	return Permitted(p.AllowedModels, p.DeniedModels, name)
}

// ToolPermitted checks name against the profile's tool lists.
func (p *Profile) ToolPermitted(name string) bool {
	return Permitted(p.AllowedTools, p.DeniedTools, name)
}
