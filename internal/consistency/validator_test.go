package consistency_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
)

type fakeResolver struct {
	sets  map[uuid.UUID]visibility.ContextSet
	calls int
}

func (f *fakeResolver) EffectiveContexts(_ context.Context, principalID uuid.UUID) (visibility.ContextSet, error) {
	f.calls++
	if set, ok := f.sets[principalID]; ok {
		return set, nil
	}
	return visibility.NewContextSet(), nil
}

type fakeContexts struct {
	rows map[uuid.UUID]*models.Context
}

func (f *fakeContexts) GetByID(_ context.Context, id uuid.UUID) (*models.Context, error) {
	return f.rows[id], nil
}

type fakeTickets struct{ rows []models.Ticket }

func (f *fakeTickets) ListForScan(_ context.Context, _ consistency.ScanScope) ([]models.Ticket, error) {
	return f.rows, nil
}

type fakeCategories struct{ rows []models.Category }

func (f *fakeCategories) ListAll(_ context.Context) ([]models.Category, error) {
	return f.rows, nil
}

func TestValidateTicketContext(t *testing.T) {
	creator := uuid.New()
	mine := uuid.New()
	other := uuid.New()
	resolver := &fakeResolver{sets: map[uuid.UUID]visibility.ContextSet{
		creator: visibility.NewContextSet(mine),
	}}
	v := consistency.NewValidator(resolver, &fakeContexts{}, &fakeTickets{}, &fakeCategories{}, nil)

	t.Run("context in effective set passes", func(t *testing.T) {
		res, err := v.ValidateTicketContext(context.Background(), &models.Ticket{
			ID: uuid.New(), ContextID: mine, CreatedBy: creator,
		})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("context outside effective set is a mismatch", func(t *testing.T) {
		ticket := &models.Ticket{ID: uuid.New(), Number: 41, ContextID: other, CreatedBy: creator}
		res, err := v.ValidateTicketContext(context.Background(), ticket)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, consistency.KindContextMismatch, res.Kind)
		assert.Equal(t, "ticket", res.EntityType)
		assert.Equal(t, ticket.ID, res.EntityID)
		require.NotNil(t, res.RecordedContext)
		assert.Equal(t, other, *res.RecordedContext)
		assert.Equal(t, []uuid.UUID{mine}, res.EffectiveContexts)
	})

	t.Run("empty effective set rejects every context", func(t *testing.T) {
		res, err := v.ValidateTicketContext(context.Background(), &models.Ticket{
			ID: uuid.New(), ContextID: mine, CreatedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, consistency.KindContextMismatch, res.Kind)
	})
}

func TestValidateCategoryContext(t *testing.T) {
	activeCtx := uuid.New()
	inactiveCtx := uuid.New()
	missingCtx := uuid.New()
	contexts := &fakeContexts{rows: map[uuid.UUID]*models.Context{
		activeCtx:   {ID: activeCtx, Name: "Acme", Active: true},
		inactiveCtx: {ID: inactiveCtx, Name: "Gone", Active: false},
	}}
	v := consistency.NewValidator(&fakeResolver{}, contexts, &fakeTickets{}, &fakeCategories{}, nil)

	t.Run("global category passes", func(t *testing.T) {
		res, err := v.ValidateCategoryContext(context.Background(), &models.Category{
			ID: uuid.New(), Slug: "general", IsGlobal: true,
		})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("scoped category with active owner passes", func(t *testing.T) {
		res, err := v.ValidateCategoryContext(context.Background(), &models.Category{
			ID: uuid.New(), Slug: "billing", ContextID: &activeCtx,
		})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("global flag with owning context violates exclusivity", func(t *testing.T) {
		res, err := v.ValidateCategoryContext(context.Background(), &models.Category{
			ID: uuid.New(), Slug: "both", IsGlobal: true, ContextID: &activeCtx,
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, consistency.KindInvalidGlobalFlag, res.Kind)
	})

	t.Run("missing owning context dangles", func(t *testing.T) {
		res, err := v.ValidateCategoryContext(context.Background(), &models.Category{
			ID: uuid.New(), Slug: "orphan", ContextID: &missingCtx,
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, consistency.KindDanglingContext, res.Kind)
		assert.False(t, res.ContextDeactivated)
	})

	t.Run("deactivated owning context dangles with flag", func(t *testing.T) {
		res, err := v.ValidateCategoryContext(context.Background(), &models.Category{
			ID: uuid.New(), Slug: "stale", ContextID: &inactiveCtx,
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, consistency.KindDanglingContext, res.Kind)
		assert.True(t, res.ContextDeactivated)
	})
}

func TestScanForViolations(t *testing.T) {
	creator := uuid.New()
	mine := uuid.New()
	other := uuid.New()
	resolver := &fakeResolver{sets: map[uuid.UUID]visibility.ContextSet{
		creator: visibility.NewContextSet(mine),
	}}
	contexts := &fakeContexts{rows: map[uuid.UUID]*models.Context{
		mine: {ID: mine, Active: true},
	}}
	tickets := &fakeTickets{rows: []models.Ticket{
		{ID: uuid.New(), Number: 1, ContextID: mine, CreatedBy: creator},
		{ID: uuid.New(), Number: 2, ContextID: other, CreatedBy: creator},
		{ID: uuid.New(), Number: 3, ContextID: mine, CreatedBy: creator},
	}}
	categories := &fakeCategories{rows: []models.Category{
		{ID: uuid.New(), Slug: "ok", ContextID: &mine},
		{ID: uuid.New(), Slug: "orphan", ContextID: &other},
	}}
	v := consistency.NewValidator(resolver, contexts, tickets, categories, nil)

	violations, err := v.ScanForViolations(context.Background(), consistency.ScanScope{})
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, consistency.KindContextMismatch, violations[0].Kind)
	assert.Equal(t, consistency.KindDanglingContext, violations[1].Kind)

	assert.Equal(t, 1, resolver.calls, "effective set is resolved once per creator")
}
