package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
)

const ticketColumns = `id, number, subject, context_id, category_id, created_by, status, priority, created_at, updated_at`

// Repository handles ticket persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tickets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.Number, &t.Subject, &t.ContextID, &t.CategoryID,
		&t.CreatedBy, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Begin opens a transaction for the create-then-validate flow.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts a ticket inside the given transaction, so the caller can
// roll the insert back when the post-condition context check fails.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Ticket) error {
	const q = `INSERT INTO tickets (id, subject, context_id, category_id, created_by, status, priority)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, number, created_at, updated_at`
	return tx.QueryRow(ctx, q, t.Subject, t.ContextID, t.CategoryID, t.CreatedBy, t.Status, t.Priority).
		Scan(&t.ID, &t.Number, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns a ticket by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListVisible returns tickets whose context is in the given set, narrowed by
// the filter, newest first. The context set arrives as a literal value: the
// effective-context computation and this query must not straddle a
// membership change.
func (r *Repository) ListVisible(ctx context.Context, contextIDs []uuid.UUID, f visibility.TicketFilter) ([]models.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE context_id = ANY($1)`
	args := []interface{}{contextIDs}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// ListForScan returns tickets bounded by the scan scope, oldest first.
func (r *Repository) ListForScan(ctx context.Context, scope consistency.ScanScope) ([]models.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE TRUE`
	var args []interface{}
	if scope.From != nil {
		args = append(args, *scope.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if scope.To != nil {
		args = append(args, *scope.To)
		q += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if len(scope.ContextIDs) > 0 {
		args = append(args, scope.ContextIDs)
		q += fmt.Sprintf(" AND context_id = ANY($%d)", len(args))
	}
	q += " ORDER BY created_at ASC"
	if scope.Limit > 0 {
		args = append(args, scope.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}
