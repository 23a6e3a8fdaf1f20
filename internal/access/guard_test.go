package access

import (
	"testing"

	"github.com/hazardwatch/apiserver/types"
)

func TestGuard_PendingUntilRolesLoaded(t *testing.T) {
	rules := map[string]Rule{
		"roads page": CategoryPage(types.CategoryRoads),
		"super page": SuperPage,
		"any admin":  AnyAdmin,
	}
	for name, rule := range rules {
		for _, scope := range []types.Scope{types.ScopeNone, types.ScopeAll} {
			if got := Guard(false, scope, rule); got != Pending {
				t.Errorf("%s with %s before load = %s, want pending", name, scope, got)
			}
		}
	}
}

func TestGuard_CategoryPage(t *testing.T) {
	tests := []struct {
		scope types.Scope
		want  Decision
	}{
		{types.ScopeRoads, Allow},
		{types.ScopeAll, Allow},
		{types.ScopeWaste, Deny},
		{types.ScopeElectricity, Deny},
		{types.ScopeNone, Deny},
	}
	for _, tt := range tests {
		if got := Guard(true, tt.scope, CategoryPage(types.CategoryRoads)); got != tt.want {
			t.Errorf("roads page for %s = %s, want %s", tt.scope, got, tt.want)
		}
	}
}

func TestGuard_SuperPage(t *testing.T) {
	if got := Guard(true, types.ScopeAll, SuperPage); got != Allow {
		t.Errorf("super page for all = %s", got)
	}
	for _, scope := range []types.Scope{types.ScopeRoads, types.ScopeWaste, types.ScopeElectricity, types.ScopeNone} {
		if got := Guard(true, scope, SuperPage); got != Deny {
			t.Errorf("super page for %s = %s, want deny", scope, got)
		}
	}
}
