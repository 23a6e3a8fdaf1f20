package types

import (
	"encoding/json"
	"fmt"
)

// Role is a role assignment bound to a user in the role-assignment store.
type Role string

// Supported roles.
const (
	RoleUser             Role = "user"
	RoleRoadsAdmin       Role = "roads_admin"
	RoleWasteAdmin       Role = "waste_admin"
	RoleElectricityAdmin Role = "electricity_admin"
	RoleSuperAdmin       Role = "super_admin"
)

// AllRoles lists every role in canonical order.
var AllRoles = []Role{
	RoleUser,
	RoleRoadsAdmin,
	RoleWasteAdmin,
	RoleElectricityAdmin,
	RoleSuperAdmin,
}

// ParseRole converts a stored role name into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleRoadsAdmin, RoleWasteAdmin, RoleElectricityAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// RoleSet is the immutable set of roles held by one identity for the
// lifetime of a session snapshot.
type RoleSet struct {
	roles []Role
}

// NewRoleSet builds a RoleSet, dropping duplicates and unknown roles.
// Roles are kept in canonical order.
func NewRoleSet(roles ...Role) RoleSet {
	seen := make(map[Role]bool, len(roles))
	for _, role := range roles {
		if role.Valid() {
			seen[role] = true
		}
	}
	set := RoleSet{}
	for _, role := range AllRoles {
		if seen[role] {
			set.roles = append(set.roles, role)
		}
	}
	return set
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role Role) bool {
	for _, r := range s.roles {
		if r == role {
			return true
		}
	}
	return false
}

// Len returns the number of roles in the set.
func (s RoleSet) Len() int {
	return len(s.roles)
}

// Roles returns a copy of the roles in canonical order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, len(s.roles))
	copy(out, s.roles)
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Roles())
}

// Scope is the single value derived from a RoleSet that decides which
// complaint categories an identity administers.
type Scope string

// Supported scope values.
const (
	ScopeNone        Scope = "none"
	ScopeRoads       Scope = "roads"
	ScopeWaste       Scope = "waste"
	ScopeElectricity Scope = "electricity"
	ScopeAll         Scope = "all"
)
