package contexts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusdesk/backend/internal/models"
)

// Repository handles context persistence (the context store).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a contexts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create creates a context.
func (r *Repository) Create(ctx context.Context, c *models.Context) error {
	const q = `INSERT INTO contexts (id, name, slug, type, active)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE)
		RETURNING id, active, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, c.Name, c.Slug, c.Type).
		Scan(&c.ID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID returns a context by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Context, error) {
	const q = `SELECT id, name, slug, type, active, created_at, updated_at FROM contexts WHERE id = $1`
	var c models.Context
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.Slug, &c.Type, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetBySlug returns a context by (slug, type), or nil when absent.
func (r *Repository) GetBySlug(ctx context.Context, slug string, typ models.ContextType) (*models.Context, error) {
	const q = `SELECT id, name, slug, type, active, created_at, updated_at FROM contexts WHERE slug = $1 AND type = $2`
	var c models.Context
	err := r.pool.QueryRow(ctx, q, slug, typ).Scan(&c.ID, &c.Name, &c.Slug, &c.Type, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns contexts, active only unless includeInactive is set.
func (r *Repository) List(ctx context.Context, includeInactive bool) ([]models.Context, error) {
	q := `SELECT id, name, slug, type, active, created_at, updated_at FROM contexts`
	if !includeInactive {
		q += ` WHERE active`
	}
	q += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Context
	for rows.Next() {
		var c models.Context
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Type, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// ListByIDs returns the contexts with the given IDs, ordered by name.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Context, error) {
	const q = `SELECT id, name, slug, type, active, created_at, updated_at
		FROM contexts WHERE id = ANY($1) ORDER BY name`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Context
	for rows.Next() {
		var c models.Context
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Type, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// SetActive enables or disables a context. Returns false when no such
// context exists.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	const q = `UPDATE contexts SET active = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IsActive reports whether the context exists and is active. A missing
// context answers false: inactive and absent are equivalent for every
// visibility computation.
func (r *Repository) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `SELECT active FROM contexts WHERE id = $1`
	var active bool
	err := r.pool.QueryRow(ctx, q, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active, nil
}

// ActiveIDs returns the IDs of all active contexts.
func (r *Repository) ActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM contexts WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
