// Package access decides which complaints an identity may see and change.
// Everything here is a pure function of the derived scope.
package access

import "github.com/hazardwatch/apiserver/types"

// categoryAdminPrecedence is the order in which category-admin roles win
// when an identity holds more than one.
var categoryAdminPrecedence = []types.Role{
	types.RoleRoadsAdmin,
	types.RoleWasteAdmin,
	types.RoleElectricityAdmin,
}

// DeriveScope collapses a role set into exactly one scope.
// super_admin wins over everything, then the first category-admin role.
func DeriveScope(roles types.RoleSet) types.Scope {
	if roles.Has(types.RoleSuperAdmin) {
		return types.ScopeAll
	}
	for _, role := range categoryAdminPrecedence {
		if roles.Has(role) {
			return roleScope(role)
		}
	}
	return types.ScopeNone
}

func roleScope(role types.Role) types.Scope {
	switch role {
	case types.RoleSuperAdmin:
		return types.ScopeAll
	case types.RoleRoadsAdmin:
		return types.ScopeRoads
	case types.RoleWasteAdmin:
		return types.ScopeWaste
	case types.RoleElectricityAdmin:
		return types.ScopeElectricity
	case types.RoleUser:
		return types.ScopeNone
	default:
		return types.ScopeNone
	}
}

// IsAdmin reports whether scope grants any administrative access.
func IsAdmin(scope types.Scope) bool {
	return scope != types.ScopeNone && scope != ""
}

// covers reports whether scope administers category.
func covers(scope types.Scope, category types.Category) bool {
	if scope == types.ScopeAll {
		return category.Valid()
	}
	return IsAdmin(scope) && category.Scope() == scope
}

// CanMutate reports whether scope may change status or admin notes of a
// complaint in category. Ownership never grants mutation.
func CanMutate(scope types.Scope, category types.Category) bool {
	return covers(scope, category)
}

// CanList reports whether scope may list complaints across owners with the
// optional category filter. A nil filter means every category.
func CanList(scope types.Scope, category *types.Category) bool {
	_, ok := ListFilter(scope, category)
	return ok
}

// ListFilter returns the category filter a cross-owner listing must apply.
// Scoped admins without a filter are narrowed to their own category; a nil
// result with ok set means unfiltered.
func ListFilter(scope types.Scope, requested *types.Category) (*types.Category, bool) {
	switch scope {
	case types.ScopeAll:
		if requested != nil && !requested.Valid() {
			return nil, false
		}
		return requested, true
	case types.ScopeRoads, types.ScopeWaste, types.ScopeElectricity:
		if requested == nil {
			own := scopeCategory(scope)
			return &own, true
		}
		if !covers(scope, *requested) {
			return nil, false
		}
		filter := *requested
		return &filter, true
	default:
		return nil, false
	}
}

func scopeCategory(scope types.Scope) types.Category {
	switch scope {
	case types.ScopeRoads:
		return types.CategoryRoads
	case types.ScopeWaste:
		return types.CategoryWaste
	case types.ScopeElectricity:
		return types.CategoryElectricity
	default:
		return ""
	}
}
