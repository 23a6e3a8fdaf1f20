package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/types"
	"github.com/lib/pq"
)

// RoleRepository reads and writes role assignments.
type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// ListByUser returns every role assigned to the user. Names the
// application does not recognise are skipped.
func (r *RoleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]types.Role, error) {
	const query = `
		SELECT role
		FROM user_roles
		WHERE user_id = $1
		ORDER BY role`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]types.Role, 0, 2)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		role, err := types.ParseRole(raw)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// Grant assigns roles to the user. Existing assignments are left alone.
func (r *RoleRepository) Grant(ctx context.Context, userID uuid.UUID, roles ...types.Role) error {
	return grantRoles(ctx, r.db, userID, roles)
}

// Revoke removes roles from the user.
func (r *RoleRepository) Revoke(ctx context.Context, userID uuid.UUID, roles ...types.Role) error {
	if len(roles) == 0 {
		return nil
	}
	const query = `DELETE FROM user_roles WHERE user_id = $1 AND role = ANY($2)`
	result, err := r.db.ExecContext(ctx, query, userID, pq.Array(roleNames(roles)))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func grantRoles(ctx context.Context, db execer, userID uuid.UUID, roles []types.Role) error {
	if len(roles) == 0 {
		return nil
	}
	const query = `
		INSERT INTO user_roles (user_id, role)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (user_id, role) DO NOTHING`
	_, err := db.ExecContext(ctx, query, userID, pq.Array(roleNames(roles)))
	return err
}

func roleNames(roles []types.Role) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return names
}
