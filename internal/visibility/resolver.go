package visibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/models"
)

// ErrStoreUnavailable wraps any failure reaching the backing store. Read
// paths fail closed: the resolver returns an empty effective-context set
// alongside this error, and handlers render empty results, never a grant.
var ErrStoreUnavailable = errors.New("visibility store unavailable")

// PrincipalSource loads principal rows.
type PrincipalSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
}

// LedgerSource reads the membership ledger already intersected with active
// contexts.
type LedgerSource interface {
	ActiveContextsFor(ctx context.Context, principalID uuid.UUID) ([]uuid.UUID, error)
}

// ContextSource answers context activity questions.
type ContextSource interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
	ActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CategorySource filters categories by an explicit context-ID set.
type CategorySource interface {
	ListVisible(ctx context.Context, contextIDs []uuid.UUID) ([]models.Category, error)
}

// TicketSource filters tickets by an explicit context-ID set.
type TicketSource interface {
	ListVisible(ctx context.Context, contextIDs []uuid.UUID, f TicketFilter) ([]models.Ticket, error)
}

// TicketFilter narrows a visible-ticket query. ContextID selects a single
// context among the effective set; a selection outside the set yields an
// empty result, not an error.
type TicketFilter struct {
	From      *time.Time
	To        *time.Time
	Status    string
	ContextID *uuid.UUID
}

// Resolver computes effective context sets and scopes category/ticket reads
// accordingly. It is a pure read/query composition layer: no side effects,
// no held state between calls. The effective set is computed once per call
// and passed as a literal into the filtering query, so a single call never
// straddles a membership change.
type Resolver struct {
	principals PrincipalSource
	ledger     LedgerSource
	contexts   ContextSource
	categories CategorySource
	tickets    TicketSource
	logger     *zap.Logger
}

// NewResolver creates a visibility resolver.
func NewResolver(principals PrincipalSource, ledger LedgerSource, contexts ContextSource,
	categories CategorySource, tickets TicketSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		principals: principals,
		ledger:     ledger,
		contexts:   contexts,
		categories: categories,
		tickets:    tickets,
		logger:     logger,
	}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// EffectiveContexts returns the set of contexts the principal may see data
// within. Single-tenant principals resolve through their projected context;
// multi-tenant principals resolve through the ledger. Either way the result
// only contains currently-active contexts, and an unknown principal or any
// store failure resolves to the empty set.
func (r *Resolver) EffectiveContexts(ctx context.Context, principalID uuid.UUID) (ContextSet, error) {
	p, err := r.principals.GetByID(ctx, principalID)
	if err != nil {
		return NewContextSet(), storeErr(err)
	}
	if p == nil {
		return NewContextSet(), nil
	}
	return r.EffectiveContextsFor(ctx, p)
}

// EffectiveContextsFor is EffectiveContexts for an already-loaded principal.
func (r *Resolver) EffectiveContextsFor(ctx context.Context, p *models.Principal) (ContextSet, error) {
	if p.Kind == models.KindSingleTenant {
		if p.ProjectedContextID == nil {
			return NewContextSet(), nil
		}
		active, err := r.contexts.IsActive(ctx, *p.ProjectedContextID)
		if err != nil {
			return NewContextSet(), storeErr(err)
		}
		if !active {
			return NewContextSet(), nil
		}
		return NewContextSet(*p.ProjectedContextID), nil
	}

	ids, err := r.ledger.ActiveContextsFor(ctx, p.ID)
	if err != nil {
		return NewContextSet(), storeErr(err)
	}
	return NewContextSet(ids...), nil
}

// ElevatedContexts is the explicitly-named bypass mode for elevated roles:
// every active context, regardless of membership.
func (r *Resolver) ElevatedContexts(ctx context.Context) (ContextSet, error) {
	ids, err := r.contexts.ActiveIDs(ctx)
	if err != nil {
		return NewContextSet(), storeErr(err)
	}
	return NewContextSet(ids...), nil
}

// VisibleCategories returns the active global categories unioned with the
// active categories owned by the principal's effective contexts, ordered by
// display order then name.
func (r *Resolver) VisibleCategories(ctx context.Context, principalID uuid.UUID) ([]models.Category, error) {
	set, err := r.EffectiveContexts(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return r.CategoriesWithin(ctx, set)
}

// CategoriesWithin lists visible categories for an explicit context set.
// Global categories are visible even when the set is empty.
func (r *Resolver) CategoriesWithin(ctx context.Context, set ContextSet) ([]models.Category, error) {
	list, err := r.categories.ListVisible(ctx, set.IDs())
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

// VisibleTickets returns tickets within the principal's effective contexts,
// narrowed by the caller-supplied filter.
func (r *Resolver) VisibleTickets(ctx context.Context, principalID uuid.UUID, f TicketFilter) ([]models.Ticket, error) {
	set, err := r.EffectiveContexts(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return r.TicketsWithin(ctx, set, f)
}

// TicketsWithin lists visible tickets for an explicit context set. A filter
// selecting a context outside the set degrades to an empty result: callers
// may pass stale selections and must not be answered with an error or a
// leak.
func (r *Resolver) TicketsWithin(ctx context.Context, set ContextSet, f TicketFilter) ([]models.Ticket, error) {
	if f.ContextID != nil {
		if !set.Has(*f.ContextID) {
			return []models.Ticket{}, nil
		}
		set = NewContextSet(*f.ContextID)
	}
	if set.Empty() {
		return []models.Ticket{}, nil
	}
	list, err := r.tickets.ListVisible(ctx, set.IDs(), f)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}
