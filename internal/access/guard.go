package access

import "github.com/hazardwatch/apiserver/types"

// Decision is the outcome of a page guard.
type Decision int

const (
	// Pending means roles are still loading; neither allow nor deny.
	Pending Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Rule decides page access from a resolved scope.
type Rule func(scope types.Scope) bool

// CategoryPage allows the department page for category.
func CategoryPage(category types.Category) Rule {
	return func(scope types.Scope) bool {
		return covers(scope, category)
	}
}

// SuperPage allows only the all-departments page holders.
func SuperPage(scope types.Scope) bool {
	return scope == types.ScopeAll
}

// AnyAdmin allows any administrative scope.
func AnyAdmin(scope types.Scope) bool {
	return IsAdmin(scope)
}

// Guard evaluates rule once roles are loaded. Until then it reports Pending.
func Guard(rolesLoaded bool, scope types.Scope, rule Rule) Decision {
	if !rolesLoaded {
		return Pending
	}
	if rule(scope) {
		return Allow
	}
	return Deny
}
