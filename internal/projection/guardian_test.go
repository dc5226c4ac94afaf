package projection_test

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/projection"
)

// fakeStore implements the guardian's store interfaces in memory, with a
// switch to make the conditional projection write lose a fixed number of
// times so retry behavior can be exercised.
type fakeStore struct {
	principals  map[uuid.UUID]*models.Principal
	ledger      map[uuid.UUID][]uuid.UUID
	contexts    map[uuid.UUID]*models.Context
	casFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		principals: make(map[uuid.UUID]*models.Principal),
		ledger:     make(map[uuid.UUID][]uuid.UUID),
		contexts:   make(map[uuid.UUID]*models.Context),
	}
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	return f.principals[id], nil
}

func (f *fakeStore) List(_ context.Context, afterID uuid.UUID, limit int) ([]models.Principal, error) {
	var all []models.Principal
	for _, p := range f.principals {
		if p.ID.String() > afterID.String() {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) UpdateProjection(_ context.Context, id uuid.UUID, expect, next *models.ProjectionRef) (bool, error) {
	if f.casFailures > 0 {
		f.casFailures--
		return false, nil
	}
	p, ok := f.principals[id]
	if !ok {
		return false, nil
	}
	current := p.Projection()
	if (current == nil) != (expect == nil) {
		return false, nil
	}
	if current != nil && current.ContextID != expect.ContextID {
		return false, nil
	}
	if next == nil {
		p.ProjectedContextID = nil
		p.ProjectedContextName = nil
		p.ProjectedContextType = nil
		return true, nil
	}
	ctxID := next.ContextID
	name := next.ContextName
	typ := next.ContextType
	p.ProjectedContextID = &ctxID
	p.ProjectedContextName = &name
	p.ProjectedContextType = &typ
	return true, nil
}

func (f *fakeStore) ContextsFor(_ context.Context, principalID uuid.UUID) ([]uuid.UUID, error) {
	return f.ledger[principalID], nil
}

func (f *fakeStore) ContextByID(_ context.Context, id uuid.UUID) (*models.Context, error) {
	return f.contexts[id], nil
}

// contextSource adapts fakeStore to the ContextStore interface, whose GetByID
// collides with PrincipalStore's.
type contextSource struct{ f *fakeStore }

func (s contextSource) GetByID(ctx context.Context, id uuid.UUID) (*models.Context, error) {
	return s.f.ContextByID(ctx, id)
}

func newGuardian(f *fakeStore) *projection.Guardian {
	return projection.NewGuardian(f, f, contextSource{f}, nil)
}

func (f *fakeStore) addContext(name string) uuid.UUID {
	id := uuid.New()
	f.contexts[id] = &models.Context{ID: id, Name: name, Type: models.ContextTypeOrganization, Active: true}
	return id
}

func (f *fakeStore) addPrincipal(kind models.PrincipalKind, projected *uuid.UUID, memberOf ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.principals[id] = &models.Principal{ID: id, Kind: kind, ProjectedContextID: projected}
	f.ledger[id] = memberOf
	return id
}

func TestClassify(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	tests := []struct {
		name       string
		kind       models.PrincipalKind
		projected  *uuid.UUID
		ledger     []uuid.UUID
		want       projection.DriftKind
		repairable bool
	}{
		{"single clean", models.KindSingleTenant, &a, []uuid.UUID{a}, projection.DriftNone, false},
		{"single clean empty", models.KindSingleTenant, nil, nil, projection.DriftNone, false},
		{"stale projection", models.KindSingleTenant, &a, nil, projection.DriftStaleProjection, true},
		{"unsynced projection", models.KindSingleTenant, nil, []uuid.UUID{a}, projection.DriftUnsyncedProjection, true},
		{"conflicting projection", models.KindSingleTenant, &a, []uuid.UUID{b}, projection.DriftConflictingProjection, true},
		{"excess membership", models.KindSingleTenant, &a, []uuid.UUID{a, b}, projection.DriftExcessMembership, false},
		{"multi clean", models.KindMultiTenant, nil, []uuid.UUID{a, b}, projection.DriftNone, false},
		{"multi projection backed by ledger", models.KindMultiTenant, &a, []uuid.UUID{a, b}, projection.DriftNone, false},
		{"multi advisory anomaly", models.KindMultiTenant, &b, []uuid.UUID{a}, projection.DriftAdvisoryProjection, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &models.Principal{ID: uuid.New(), Kind: tt.kind, ProjectedContextID: tt.projected}
			report := projection.Classify(p, tt.ledger)
			assert.Equal(t, tt.want, report.Kind)
			assert.Equal(t, tt.repairable, report.Repairable)
		})
	}
}

func TestDetectDriftUnknownPrincipal(t *testing.T) {
	g := newGuardian(newFakeStore())
	report, err := g.DetectDrift(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, projection.DriftNone, report.Kind)
}

func TestRepairDriftUnsynced(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext("Acme")
	pid := f.addPrincipal(models.KindSingleTenant, nil, ctxID)
	g := newGuardian(f)

	result, err := g.RepairDrift(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, projection.DriftUnsyncedProjection, result.Kind)
	require.NotNil(t, result.Current)
	assert.Equal(t, ctxID, *result.Current)

	p := f.principals[pid]
	require.NotNil(t, p.ProjectedContextID)
	assert.Equal(t, ctxID, *p.ProjectedContextID)
	require.NotNil(t, p.ProjectedContextName)
	assert.Equal(t, "Acme", *p.ProjectedContextName)
}

func TestRepairDriftStale(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext("Acme")
	pid := f.addPrincipal(models.KindSingleTenant, &ctxID) // no ledger row
	g := newGuardian(f)

	result, err := g.RepairDrift(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, projection.DriftStaleProjection, result.Kind)
	assert.Nil(t, result.Current)
	assert.Nil(t, f.principals[pid].ProjectedContextID)
}

func TestRepairDriftIdempotent(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext("Acme")
	pid := f.addPrincipal(models.KindSingleTenant, nil, ctxID)
	g := newGuardian(f)

	first, err := g.RepairDrift(context.Background(), pid)
	require.NoError(t, err)
	require.True(t, first.Repaired)

	second, err := g.RepairDrift(context.Background(), pid)
	require.NoError(t, err)
	assert.False(t, second.Repaired)
	assert.Equal(t, projection.DriftNone, second.Kind)
}

func TestRepairDriftLeavesExcessMembership(t *testing.T) {
	f := newFakeStore()
	a := f.addContext("A")
	b := f.addContext("B")
	pid := f.addPrincipal(models.KindSingleTenant, &a, a, b)
	g := newGuardian(f)

	result, err := g.RepairDrift(context.Background(), pid)
	require.NoError(t, err)
	assert.False(t, result.Repaired)
	assert.Equal(t, projection.DriftExcessMembership, result.Kind)
	assert.Equal(t, &a, f.principals[pid].ProjectedContextID, "ambiguous state must stay untouched")
}

func TestRepairDriftRetriesLostWrite(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext("Acme")
	pid := f.addPrincipal(models.KindSingleTenant, nil, ctxID)
	f.casFailures = 2
	g := newGuardian(f)

	result, err := g.RepairDrift(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, result.Repaired)
}

func TestRepairDriftGivesUpAfterRetries(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext("Acme")
	pid := f.addPrincipal(models.KindSingleTenant, nil, ctxID)
	f.casFailures = 10
	g := newGuardian(f)

	_, err := g.RepairDrift(context.Background(), pid)
	require.ErrorIs(t, err, projection.ErrRepairConflict)
}

func TestSweepPage(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext("Acme")
	clean := f.addPrincipal(models.KindSingleTenant, &ctxID, ctxID)
	drifted := f.addPrincipal(models.KindSingleTenant, nil, ctxID)
	excess := f.addPrincipal(models.KindSingleTenant, &ctxID, ctxID, f.addContext("Other"))
	g := newGuardian(f)

	var reports []projection.DriftReport
	var results []projection.RepairResult
	cursor := uuid.Nil
	for {
		pageReports, pageResults, last, n, err := g.SweepPage(context.Background(), cursor, 2)
		require.NoError(t, err)
		reports = append(reports, pageReports...)
		results = append(results, pageResults...)
		if n == 0 {
			break
		}
		cursor = last
	}

	require.Len(t, reports, 2, "clean principal must not be reported")
	kinds := map[uuid.UUID]projection.DriftKind{}
	for _, r := range reports {
		kinds[r.PrincipalID] = r.Kind
	}
	assert.NotContains(t, kinds, clean)
	assert.Equal(t, projection.DriftUnsyncedProjection, kinds[drifted])
	assert.Equal(t, projection.DriftExcessMembership, kinds[excess])

	require.Len(t, results, 1, "only repairable drift is repaired")
	assert.True(t, results[0].Repaired)
	assert.Equal(t, drifted, results[0].PrincipalID)
	require.NotNil(t, f.principals[drifted].ProjectedContextID)
	assert.Equal(t, ctxID, *f.principals[drifted].ProjectedContextID)
}
