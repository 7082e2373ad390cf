// Package permission implements the Permission Middleware: policy-gated
// tool invocation with an ask/allow/deny flow and a TTL'd approval cache.
package permission

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Action is the outcome a matched rule (or the default) prescribes.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Rule gates one glob-style tool-name pattern. Patterns support `*`,
// `prefix*`, `*suffix`, and exact names; doublestar.Match's glob syntax
// is a strict superset of this, so a plain `*` or `name*`/`*name`
// pattern behaves identically to the simpler matcher the original used.
type Rule struct {
	Pattern string
	Action  Action
}

// Policy is an ordered rule table; first match wins, else DefaultAction.
type Policy struct {
	Rules         []Rule
	DefaultAction Action
}

// Resolve returns the action for toolName: the first matching rule, or
// the policy's default.
func (p Policy) Resolve(toolName string) Action {
	for _, r := range p.Rules {
		if matches(r.Pattern, toolName) {
			return r.Action
		}
	}
	if p.DefaultAction == "" {
		return ActionAsk
	}
	return p.DefaultAction
}

func matches(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
