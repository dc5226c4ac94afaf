package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
)

// Kind classifies a cross-entity invariant violation.
type Kind string

const (
	// KindContextMismatch: a ticket's recorded context is not in its
	// creator's effective set.
	KindContextMismatch Kind = "context_mismatch"
	// KindInvalidGlobalFlag: a category violates is_global XOR context_id.
	KindInvalidGlobalFlag Kind = "invalid_global_flag"
	// KindDanglingContext: a category references a missing or inactive
	// context.
	KindDanglingContext Kind = "dangling_context"
)

// Result describes one violation. Detection never mutates; remediation is a
// separate, explicit operation so the two stay independently auditable.
type Result struct {
	Kind              Kind        `json:"kind"`
	EntityType        string      `json:"entity_type"`
	EntityID          uuid.UUID   `json:"entity_id"`
	RecordedContext   *uuid.UUID  `json:"recorded_context_id,omitempty"`
	EffectiveContexts []uuid.UUID `json:"effective_context_ids,omitempty"`
	// ContextDeactivated marks a dangling context that still exists but is
	// disabled: reads treat it as empty visibility while cleanup is pending.
	ContextDeactivated bool   `json:"context_deactivated,omitempty"`
	Message            string `json:"message"`
}

// ScanScope bounds a batch violation scan.
type ScanScope struct {
	From       *time.Time
	To         *time.Time
	ContextIDs []uuid.UUID
	Limit      int
}

// ContextResolver computes effective context sets.
type ContextResolver interface {
	EffectiveContexts(ctx context.Context, principalID uuid.UUID) (visibility.ContextSet, error)
}

// ContextSource loads context rows.
type ContextSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Context, error)
}

// TicketSource lists tickets for batch scanning.
type TicketSource interface {
	ListForScan(ctx context.Context, scope ScanScope) ([]models.Ticket, error)
}

// CategorySource lists categories for batch scanning.
type CategorySource interface {
	ListAll(ctx context.Context) ([]models.Category, error)
}

// Validator checks cross-entity invariants and reports violations for
// administrative repair tooling. It never auto-corrects: the right fix for
// a mismatch is ambiguous, and silent correction hides the real bug.
type Validator struct {
	resolver   ContextResolver
	contexts   ContextSource
	tickets    TicketSource
	categories CategorySource
	logger     *zap.Logger
}

// NewValidator creates a consistency validator.
func NewValidator(resolver ContextResolver, contexts ContextSource, tickets TicketSource,
	categories CategorySource, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		resolver:   resolver,
		contexts:   contexts,
		tickets:    tickets,
		categories: categories,
		logger:     logger,
	}
}

// ValidateTicketContext checks that the ticket's recorded context belongs to
// its creator's effective set. A nil result means the ticket passes.
func (v *Validator) ValidateTicketContext(ctx context.Context, t *models.Ticket) (*Result, error) {
	set, err := v.resolver.EffectiveContexts(ctx, t.CreatedBy)
	if err != nil {
		return nil, err
	}
	return v.checkTicketAgainst(t, set), nil
}

func (v *Validator) checkTicketAgainst(t *models.Ticket, set visibility.ContextSet) *Result {
	if set.Has(t.ContextID) {
		return nil
	}
	recorded := t.ContextID
	return &Result{
		Kind:              KindContextMismatch,
		EntityType:        "ticket",
		EntityID:          t.ID,
		RecordedContext:   &recorded,
		EffectiveContexts: set.IDs(),
		Message: fmt.Sprintf("ticket %d recorded context %s outside creator's effective set",
			t.Number, t.ContextID),
	}
}

// ValidateCategoryContext checks the is_global XOR context_id invariant and
// that a scoped category's owning context still exists and is active. A nil
// result means the category passes.
func (v *Validator) ValidateCategoryContext(ctx context.Context, cat *models.Category) (*Result, error) {
	if cat.IsGlobal != (cat.ContextID == nil) {
		return &Result{
			Kind:            KindInvalidGlobalFlag,
			EntityType:      "category",
			EntityID:        cat.ID,
			RecordedContext: cat.ContextID,
			Message:         fmt.Sprintf("category %q violates is_global/context_id exclusivity", cat.Slug),
		}, nil
	}
	if cat.ContextID == nil {
		return nil, nil
	}

	owner, err := v.contexts.GetByID(ctx, *cat.ContextID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return &Result{
			Kind:            KindDanglingContext,
			EntityType:      "category",
			EntityID:        cat.ID,
			RecordedContext: cat.ContextID,
			Message:         fmt.Sprintf("category %q references missing context %s", cat.Slug, *cat.ContextID),
		}, nil
	}
	if !owner.Active {
		return &Result{
			Kind:               KindDanglingContext,
			EntityType:         "category",
			EntityID:           cat.ID,
			RecordedContext:    cat.ContextID,
			ContextDeactivated: true,
			Message:            fmt.Sprintf("category %q references deactivated context %s", cat.Slug, *cat.ContextID),
		}, nil
	}
	return nil, nil
}

// ScanForViolations runs the batch checks over tickets in scope and all
// categories, returning only violations. Read-only.
func (v *Validator) ScanForViolations(ctx context.Context, scope ScanScope) ([]Result, error) {
	var violations []Result

	tickets, err := v.tickets.ListForScan(ctx, scope)
	if err != nil {
		return nil, err
	}
	// Effective sets are stable within one scan; cache per creator.
	sets := make(map[uuid.UUID]visibility.ContextSet)
	for i := range tickets {
		t := &tickets[i]
		set, ok := sets[t.CreatedBy]
		if !ok {
			set, err = v.resolver.EffectiveContexts(ctx, t.CreatedBy)
			if err != nil {
				return nil, err
			}
			sets[t.CreatedBy] = set
		}
		if res := v.checkTicketAgainst(t, set); res != nil {
			violations = append(violations, *res)
		}
	}

	categories, err := v.categories.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range categories {
		res, err := v.ValidateCategoryContext(ctx, &categories[i])
		if err != nil {
			return nil, err
		}
		if res != nil {
			violations = append(violations, *res)
		}
	}

	v.logger.Info("violation scan finished",
		zap.Int("tickets", len(tickets)),
		zap.Int("categories", len(categories)),
		zap.Int("violations", len(violations)))
	return violations, nil
}
