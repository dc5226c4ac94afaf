package memberships

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusdesk/backend/internal/models"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrContextNotFound   = errors.New("context not found")
	ErrContextInactive   = errors.New("context is inactive")
)

// Repository handles the membership ledger: the authoritative record of
// which principal may access which context. Grant and revoke propagate the
// single-tenant projection inside the same transaction; if propagation
// fails, the whole mutation rolls back.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a memberships repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ContextsFor returns the raw ledger context IDs for a principal, including
// contexts that have since been deactivated. Drift detection wants the raw
// rows; visibility wants ActiveContextsFor.
func (r *Repository) ContextsFor(ctx context.Context, principalID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT context_id FROM memberships WHERE principal_id = $1 ORDER BY created_at`, principalID)
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

// ActiveContextsFor returns the ledger context IDs whose context is still
// active. A membership row pointing at a disabled context grants nothing.
func (r *Repository) ActiveContextsFor(ctx context.Context, principalID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT m.context_id
		FROM memberships m
		INNER JOIN contexts c ON c.id = m.context_id
		WHERE m.principal_id = $1 AND c.active`
	rows, err := r.pool.Query(ctx, q, principalID)
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

// Member is a ledger row joined with principal details for administrative
// listing.
type Member struct {
	PrincipalID uuid.UUID            `json:"principal_id"`
	DisplayName string               `json:"display_name"`
	Kind        models.PrincipalKind `json:"kind"`
	GrantedAt   time.Time            `json:"granted_at"`
}

// ListMembers returns the principals holding a membership in the context.
func (r *Repository) ListMembers(ctx context.Context, contextID uuid.UUID) ([]Member, error) {
	const q = `SELECT m.principal_id, p.display_name, p.kind, m.created_at
		FROM memberships m
		INNER JOIN principals p ON p.id = m.principal_id
		WHERE m.context_id = $1
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, q, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.PrincipalID, &m.DisplayName, &m.Kind, &m.GrantedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// Grant records that the principal may access the context. The insert is an
// upsert on the (principal, context) pair so the ledger keeps set semantics.
// For a single-tenant principal the grant replaces any existing membership
// (at most one row holds) and rewrites the projection in the same
// transaction.
func (r *Repository) Grant(ctx context.Context, principalID, contextID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var kind models.PrincipalKind
	err = tx.QueryRow(ctx, `SELECT kind FROM principals WHERE id = $1 FOR UPDATE`, principalID).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPrincipalNotFound
	}
	if err != nil {
		return err
	}

	var ctxName, ctxType string
	var ctxActive bool
	err = tx.QueryRow(ctx, `SELECT name, type, active FROM contexts WHERE id = $1`, contextID).
		Scan(&ctxName, &ctxType, &ctxActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrContextNotFound
	}
	if err != nil {
		return err
	}
	if !ctxActive {
		return ErrContextInactive
	}

	if kind == models.KindSingleTenant {
		if _, err := tx.Exec(ctx,
			`DELETE FROM memberships WHERE principal_id = $1 AND context_id <> $2`,
			principalID, contextID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO memberships (principal_id, context_id) VALUES ($1, $2)
		 ON CONFLICT (principal_id, context_id) DO NOTHING`,
		principalID, contextID); err != nil {
		return err
	}

	if kind == models.KindSingleTenant {
		if _, err := tx.Exec(ctx,
			`UPDATE principals
			 SET projected_context_id = $2, projected_context_name = $3, projected_context_type = $4, updated_at = NOW()
			 WHERE id = $1`,
			principalID, contextID, ctxName, ctxType); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Revoke removes the principal's access to the context. For a single-tenant
// principal the projection is cleared in the same transaction (zero rows
// project to nothing). Revoking an absent membership is a no-op.
func (r *Repository) Revoke(ctx context.Context, principalID, contextID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var kind models.PrincipalKind
	err = tx.QueryRow(ctx, `SELECT kind FROM principals WHERE id = $1 FOR UPDATE`, principalID).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPrincipalNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM memberships WHERE principal_id = $1 AND context_id = $2`,
		principalID, contextID); err != nil {
		return err
	}

	if kind == models.KindSingleTenant {
		if _, err := tx.Exec(ctx,
			`UPDATE principals
			 SET projected_context_id = NULL, projected_context_name = NULL, projected_context_type = NULL, updated_at = NOW()
			 WHERE id = $1 AND projected_context_id = $2`,
			principalID, contextID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
