package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/types"
)

const complaintColumns = `id, user_id, category, description, image_url, latitude, longitude,
		address, status, admin_notes, created_at, updated_at, resolved_at`

// ComplaintFilter narrows a complaint listing. A nil field does not filter.
type ComplaintFilter struct {
	OwnerID  *uuid.UUID
	Category *types.Category
}

// ComplaintRepository handles persistence for complaints.
type ComplaintRepository struct {
	db *sql.DB
}

func NewComplaintRepository(db *sql.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (types.Complaint, error) {
	var c types.Complaint
	var address, notes sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Category,
		&c.Description,
		&c.ImageURL,
		&c.Latitude,
		&c.Longitude,
		&address,
		&c.Status,
		&notes,
		&c.CreatedAt,
		&c.UpdatedAt,
		&resolvedAt,
	); err != nil {
		return types.Complaint{}, err
	}
	if address.Valid {
		c.Address = &address.String
	}
	if notes.Valid {
		c.AdminNotes = &notes.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return c, nil
}

// List returns complaints matching filter, newest first.
func (r *ComplaintRepository) List(ctx context.Context, filter ComplaintFilter) ([]types.Complaint, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	query := `SELECT ` + complaintColumns + ` FROM complaints`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	complaints := make([]types.Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return complaints, nil
}

func (r *ComplaintRepository) Get(ctx context.Context, id uuid.UUID) (types.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	c, err := scanComplaint(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Complaint{}, ErrNotFound
		}
		return types.Complaint{}, err
	}
	return c, nil
}

func (r *ComplaintRepository) Create(ctx context.Context, c types.Complaint) (types.Complaint, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	query := `
		INSERT INTO complaints (user_id, category, description, image_url, latitude, longitude,
			address, status, admin_notes, created_at, updated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + complaintColumns
	return scanComplaint(r.db.QueryRowContext(
		ctx,
		query,
		c.UserID,
		string(c.Category),
		c.Description,
		c.ImageURL,
		c.Latitude,
		c.Longitude,
		c.Address,
		string(c.Status),
		c.AdminNotes,
		c.CreatedAt,
		c.UpdatedAt,
		c.ResolvedAt,
	))
}

// Update writes the mutable fields of c in a single statement and returns
// the stored row. Category and owner are never written.
func (r *ComplaintRepository) Update(ctx context.Context, c types.Complaint) (types.Complaint, error) {
	query := `
		UPDATE complaints
		SET status = $1,
			admin_notes = $2,
			resolved_at = $3,
			updated_at = $4
		WHERE id = $5
		RETURNING ` + complaintColumns
	updated, err := scanComplaint(r.db.QueryRowContext(
		ctx,
		query,
		string(c.Status),
		c.AdminNotes,
		c.ResolvedAt,
		c.UpdatedAt,
		c.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Complaint{}, ErrNotFound
		}
		return types.Complaint{}, err
	}
	return updated, nil
}
