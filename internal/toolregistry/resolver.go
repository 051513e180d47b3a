package toolregistry

import "strings"

// Policy is an allow/deny rule set gating which tools a caller (e.g. a
// tournament worker) may see or invoke. Deny always wins over allow.
type Policy struct {
	Allow []string
	Deny  []string
}

// Resolver evaluates a Policy against tool names, expanding "*" wildcards.
// It is the scoped-down descendant of the teacher's MCP/edge-aware policy
// resolver: no server/device namespacing, just tool-name patterns.
type Resolver struct {
	policy Policy
}

// NewResolver builds a Resolver enforcing policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// IsAllowed reports whether name passes the resolver's policy.
func (r *Resolver) IsAllowed(name string) bool {
	for _, d := range r.policy.Deny {
		if matchPattern(d, name) {
			return false
		}
	}
	if len(r.policy.Allow) == 0 {
		return true
	}
	for _, a := range r.policy.Allow {
		if matchPattern(a, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}
