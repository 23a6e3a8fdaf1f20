package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/internal/metrics"
	"github.com/hazardwatch/apiserver/types"
)

// RoleRepository defines persistence operations for role assignments.
type RoleRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]types.Role, error)
	Grant(ctx context.Context, userID uuid.UUID, roles ...types.Role) error
	Revoke(ctx context.Context, userID uuid.UUID, roles ...types.Role) error
}

// RoleService resolves and manages role assignments.
type RoleService struct {
	repo RoleRepository
}

func NewRoleService(repo RoleRepository) *RoleService {
	return &RoleService{repo: repo}
}

// Resolve returns the role set held by identity. A user without rows
// resolves to an empty set.
func (s *RoleService) Resolve(ctx context.Context, identity types.Identity) (types.RoleSet, error) {
	if !identity.Authenticated() {
		return types.RoleSet{}, ErrUnauthenticated
	}
	roles, err := s.repo.ListByUser(ctx, identity.UserID)
	if err != nil {
		metrics.RecordRoleResolutionFailure()
		return types.RoleSet{}, &StoreError{Op: "list roles", Err: err}
	}
	return types.NewRoleSet(roles...), nil
}

func (s *RoleService) Grant(ctx context.Context, userID uuid.UUID, roles ...types.Role) error {
	return wrapStore("grant roles", s.repo.Grant(ctx, userID, roles...))
}

func (s *RoleService) Revoke(ctx context.Context, userID uuid.UUID, roles ...types.Role) error {
	return wrapStore("revoke roles", s.repo.Revoke(ctx, userID, roles...))
}
