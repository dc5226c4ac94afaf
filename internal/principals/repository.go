package principals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusdesk/backend/internal/models"
)

const principalColumns = `id, display_name, kind, role,
	projected_context_id, projected_context_name, projected_context_type,
	created_at, updated_at`

// Repository handles principal persistence, including the projected-context
// cache columns.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a principals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(&p.ID, &p.DisplayName, &p.Kind, &p.Role,
		&p.ProjectedContextID, &p.ProjectedContextName, &p.ProjectedContextType,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create creates a principal. The projection columns start clear; they are
// only ever derived from the ledger.
func (r *Repository) Create(ctx context.Context, p *models.Principal) error {
	const q = `INSERT INTO principals (id, display_name, kind, role)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.DisplayName, p.Kind, p.Role).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a principal by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	p, err := scanPrincipal(r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns up to limit principals with id greater than afterID, ordered
// by id. Keyset pagination keeps the consistency sweep resumable.
func (r *Repository) List(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Principal, error) {
	const q = `SELECT ` + principalColumns + ` FROM principals WHERE id > $1 ORDER BY id LIMIT $2`
	rows, err := r.pool.Query(ctx, q, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// UpdateProjection sets the projection columns to next, conditional on the
// columns still matching expect (nil means clear). Returns false when the
// projection changed underneath the caller; retry after re-reading.
func (r *Repository) UpdateProjection(ctx context.Context, id uuid.UUID, expect, next *models.ProjectionRef) (bool, error) {
	const q = `UPDATE principals
		SET projected_context_id = $2, projected_context_name = $3, projected_context_type = $4, updated_at = NOW()
		WHERE id = $1 AND projected_context_id IS NOT DISTINCT FROM $5`
	var nextID *uuid.UUID
	var nextName, nextType *string
	if next != nil {
		nextID, nextName, nextType = &next.ContextID, &next.ContextName, &next.ContextType
	}
	var expectID *uuid.UUID
	if expect != nil {
		expectID = &expect.ContextID
	}
	tag, err := r.pool.Exec(ctx, q, id, nextID, nextName, nextType, expectID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
