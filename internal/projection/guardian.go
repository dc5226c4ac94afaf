package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/models"
)

// DriftKind classifies a disagreement between the projection columns and
// the membership ledger.
type DriftKind string

const (
	DriftNone DriftKind = "none"
	// DriftStaleProjection: projection set but no matching ledger row.
	DriftStaleProjection DriftKind = "stale_projection"
	// DriftUnsyncedProjection: ledger row exists but projection is clear.
	DriftUnsyncedProjection DriftKind = "unsynced_projection"
	// DriftConflictingProjection: projection disagrees with the sole ledger row.
	DriftConflictingProjection DriftKind = "conflicting_projection"
	// DriftAdvisoryProjection: a multi-tenant principal's projection points
	// at a context with no backing ledger row. Reported, never repaired.
	DriftAdvisoryProjection DriftKind = "advisory_projection"
	// DriftExcessMembership: a single-tenant principal holds more than one
	// ledger row. No unambiguous value to project; reported, never repaired.
	DriftExcessMembership DriftKind = "excess_membership"
)

// ErrRepairConflict is returned when the optimistic projection update keeps
// losing to concurrent writers.
var ErrRepairConflict = errors.New("projection repair conflict")

const repairAttempts = 3

// DriftReport is the outcome of drift detection for one principal.
type DriftReport struct {
	PrincipalID uuid.UUID  `json:"principal_id"`
	Kind        DriftKind  `json:"kind"`
	Repairable  bool       `json:"repairable"`
	Projected   *uuid.UUID `json:"projected_context_id,omitempty"`
	Ledger      []uuid.UUID `json:"ledger_context_ids"`
	DetectedAt  time.Time  `json:"detected_at"`
}

// RepairResult is the outcome of a repair attempt. Repair is idempotent:
// running it again after a successful repair reports Repaired=false.
type RepairResult struct {
	PrincipalID uuid.UUID  `json:"principal_id"`
	Repaired    bool       `json:"repaired"`
	Kind        DriftKind  `json:"kind"`
	Previous    *uuid.UUID `json:"previous_context_id,omitempty"`
	Current     *uuid.UUID `json:"current_context_id,omitempty"`
}

// PrincipalStore reads principals and applies conditional projection writes.
type PrincipalStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	List(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Principal, error)
	UpdateProjection(ctx context.Context, id uuid.UUID, expect, next *models.ProjectionRef) (bool, error)
}

// LedgerStore reads raw ledger rows, including rows pointing at inactive
// contexts: drift is judged against the ledger as written, not against
// visibility.
type LedgerStore interface {
	ContextsFor(ctx context.Context, principalID uuid.UUID) ([]uuid.UUID, error)
}

// ContextStore loads context rows for projection denormalization.
type ContextStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Context, error)
}

// Guardian keeps the single-tenant projection consistent with the ledger:
// the ledger is the single writable source of truth and the projection is a
// derived cache, repaired one direction only (ledger to projection). The
// guardian never invents or removes ledger rows.
type Guardian struct {
	principals PrincipalStore
	ledger     LedgerStore
	contexts   ContextStore
	logger     *zap.Logger
}

// NewGuardian creates a sync guardian.
func NewGuardian(principals PrincipalStore, ledger LedgerStore, contexts ContextStore, logger *zap.Logger) *Guardian {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guardian{principals: principals, ledger: ledger, contexts: contexts, logger: logger}
}

// Classify compares a principal's projection against its raw ledger rows.
// Pure function of its inputs.
func Classify(p *models.Principal, ledger []uuid.UUID) DriftReport {
	report := DriftReport{
		PrincipalID: p.ID,
		Kind:        DriftNone,
		Projected:   p.ProjectedContextID,
		Ledger:      ledger,
		DetectedAt:  time.Now().UTC(),
	}

	if p.Kind == models.KindMultiTenant {
		// Projection columns are advisory for multi-tenant principals; the
		// only gross anomaly is a projection with no backing ledger row.
		if p.ProjectedContextID != nil && !containsID(ledger, *p.ProjectedContextID) {
			report.Kind = DriftAdvisoryProjection
		}
		return report
	}

	switch {
	case len(ledger) > 1:
		report.Kind = DriftExcessMembership
	case len(ledger) == 0 && p.ProjectedContextID != nil:
		report.Kind = DriftStaleProjection
		report.Repairable = true
	case len(ledger) == 1 && p.ProjectedContextID == nil:
		report.Kind = DriftUnsyncedProjection
		report.Repairable = true
	case len(ledger) == 1 && *p.ProjectedContextID != ledger[0]:
		report.Kind = DriftConflictingProjection
		report.Repairable = true
	}
	return report
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// DetectDrift loads the principal and its ledger rows and classifies drift.
// An unknown principal is reported as drift-free.
func (g *Guardian) DetectDrift(ctx context.Context, principalID uuid.UUID) (DriftReport, error) {
	p, err := g.principals.GetByID(ctx, principalID)
	if err != nil {
		return DriftReport{}, err
	}
	if p == nil {
		return DriftReport{PrincipalID: principalID, Kind: DriftNone, DetectedAt: time.Now().UTC()}, nil
	}
	ledger, err := g.ledger.ContextsFor(ctx, principalID)
	if err != nil {
		return DriftReport{}, err
	}
	return Classify(p, ledger), nil
}

// RepairDrift propagates the ledger into the projection for single-tenant
// principals: projection becomes the sole ledger row's context, or clears
// when there is none. Non-repairable drift (multi-tenant anomalies, excess
// membership) is left as reported. The write is conditional on the
// projection still matching what was read, retried a bounded number of
// times, so concurrent repairs converge rather than conflict.
func (g *Guardian) RepairDrift(ctx context.Context, principalID uuid.UUID) (RepairResult, error) {
	for attempt := 0; attempt < repairAttempts; attempt++ {
		p, err := g.principals.GetByID(ctx, principalID)
		if err != nil {
			return RepairResult{}, err
		}
		if p == nil {
			return RepairResult{PrincipalID: principalID, Kind: DriftNone}, nil
		}
		ledger, err := g.ledger.ContextsFor(ctx, principalID)
		if err != nil {
			return RepairResult{}, err
		}

		report := Classify(p, ledger)
		result := RepairResult{
			PrincipalID: principalID,
			Kind:        report.Kind,
			Previous:    p.ProjectedContextID,
			Current:     p.ProjectedContextID,
		}
		if !report.Repairable {
			return result, nil
		}

		var next *models.ProjectionRef
		if len(ledger) == 1 {
			c, err := g.contexts.GetByID(ctx, ledger[0])
			if err != nil {
				return RepairResult{}, err
			}
			if c == nil {
				return RepairResult{}, fmt.Errorf("ledger references missing context %s", ledger[0])
			}
			next = &models.ProjectionRef{ContextID: c.ID, ContextName: c.Name, ContextType: string(c.Type)}
		}

		ok, err := g.principals.UpdateProjection(ctx, principalID, p.Projection(), next)
		if err != nil {
			return RepairResult{}, err
		}
		if ok {
			result.Repaired = true
			result.Current = nil
			if next != nil {
				result.Current = &next.ContextID
			}
			g.logger.Info("projection repaired",
				zap.String("principal_id", principalID.String()),
				zap.String("drift", string(report.Kind)))
			return result, nil
		}
		// Lost the conditional write; re-read and try again.
	}
	return RepairResult{}, fmt.Errorf("%w: principal %s", ErrRepairConflict, principalID)
}

// SweepPage repairs one page of the principal population, ordered by id
// ascending starting after afterID. Per-principal failures are logged and
// skipped so one bad row never blocks the sweep. It returns every non-clean
// report, the results of attempted repairs, the last id seen, and the page
// size processed (0 means the population is exhausted).
func (g *Guardian) SweepPage(ctx context.Context, afterID uuid.UUID, limit int) ([]DriftReport, []RepairResult, uuid.UUID, int, error) {
	page, err := g.principals.List(ctx, afterID, limit)
	if err != nil {
		return nil, nil, afterID, 0, err
	}

	var reports []DriftReport
	var results []RepairResult
	last := afterID
	for i := range page {
		p := &page[i]
		last = p.ID

		ledger, err := g.ledger.ContextsFor(ctx, p.ID)
		if err != nil {
			g.logger.Warn("sweep: ledger read failed",
				zap.String("principal_id", p.ID.String()), zap.Error(err))
			continue
		}
		report := Classify(p, ledger)
		if report.Kind == DriftNone {
			continue
		}
		reports = append(reports, report)

		if !report.Repairable {
			continue
		}
		result, err := g.RepairDrift(ctx, p.ID)
		if err != nil {
			g.logger.Warn("sweep: repair failed",
				zap.String("principal_id", p.ID.String()), zap.Error(err))
			continue
		}
		results = append(results, result)
	}
	return reports, results, last, len(page), nil
}
