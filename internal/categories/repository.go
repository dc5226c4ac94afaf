package categories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusdesk/backend/internal/models"
)

const categoryColumns = `id, name, slug, is_global, context_id, active, display_order, parent_id, created_at, updated_at`

// Repository handles category persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a categories repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCategory(row pgx.Row) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.IsGlobal, &c.ContextID, &c.Active,
		&c.DisplayOrder, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a category. The is_global/context_id exclusivity is also
// enforced by a DB check constraint.
func (r *Repository) Create(ctx context.Context, c *models.Category) error {
	const q = `INSERT INTO categories (id, name, slug, is_global, context_id, active, display_order, parent_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, $5, $6)
		RETURNING id, active, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, c.Name, c.Slug, c.IsGlobal, c.ContextID, c.DisplayOrder, c.ParentID).
		Scan(&c.ID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID returns a category by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListVisible returns active global categories unioned with active
// categories owned by the given contexts, ordered by display order then
// name. The caller passes the effective-context set as a literal so the
// query never re-derives membership.
func (r *Repository) ListVisible(ctx context.Context, contextIDs []uuid.UUID) ([]models.Category, error) {
	const q = `SELECT ` + categoryColumns + ` FROM categories
		WHERE active AND (is_global OR context_id = ANY($1))
		ORDER BY display_order ASC, name ASC`
	rows, err := r.pool.Query(ctx, q, contextIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// ListAll returns every category, for consistency scans.
func (r *Repository) ListAll(ctx context.Context) ([]models.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// SetActive enables or disables a category. Returns false when no such
// category exists.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
