package visibility_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
)

// fakeStore backs every resolver source interface with in-memory maps so
// tests can stage principals, ledger rows and contexts without a database.
type fakeStore struct {
	principals map[uuid.UUID]*models.Principal
	ledger     map[uuid.UUID][]uuid.UUID // principal -> active contexts
	active     map[uuid.UUID]bool
	categories []models.Category
	tickets    []models.Ticket
	failing    bool
}

var errStoreDown = errors.New("store down")

func newFakeStore() *fakeStore {
	return &fakeStore{
		principals: make(map[uuid.UUID]*models.Principal),
		ledger:     make(map[uuid.UUID][]uuid.UUID),
		active:     make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	if f.failing {
		return nil, errStoreDown
	}
	return f.principals[id], nil
}

func (f *fakeStore) ActiveContextsFor(_ context.Context, principalID uuid.UUID) ([]uuid.UUID, error) {
	if f.failing {
		return nil, errStoreDown
	}
	var out []uuid.UUID
	for _, id := range f.ledger[principalID] {
		if f.active[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) IsActive(_ context.Context, id uuid.UUID) (bool, error) {
	if f.failing {
		return false, errStoreDown
	}
	return f.active[id], nil
}

func (f *fakeStore) ActiveIDs(_ context.Context) ([]uuid.UUID, error) {
	if f.failing {
		return nil, errStoreDown
	}
	var out []uuid.UUID
	for id, active := range f.active {
		if active {
			out = append(out, id)
		}
	}
	return out, nil
}

// categorySource and ticketSource are separated because both interfaces
// declare ListVisible with different signatures.
type categorySource struct{ f *fakeStore }

func (s categorySource) ListVisible(_ context.Context, contextIDs []uuid.UUID) ([]models.Category, error) {
	if s.f.failing {
		return nil, errStoreDown
	}
	in := make(map[uuid.UUID]bool, len(contextIDs))
	for _, id := range contextIDs {
		in[id] = true
	}
	var out []models.Category
	for _, c := range s.f.categories {
		if !c.Active {
			continue
		}
		if c.IsGlobal || (c.ContextID != nil && in[*c.ContextID]) {
			out = append(out, c)
		}
	}
	return out, nil
}

type ticketSource struct{ f *fakeStore }

func (s ticketSource) ListVisible(_ context.Context, contextIDs []uuid.UUID, _ visibility.TicketFilter) ([]models.Ticket, error) {
	if s.f.failing {
		return nil, errStoreDown
	}
	in := make(map[uuid.UUID]bool, len(contextIDs))
	for _, id := range contextIDs {
		in[id] = true
	}
	var out []models.Ticket
	for _, t := range s.f.tickets {
		if in[t.ContextID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func newResolver(f *fakeStore) *visibility.Resolver {
	return visibility.NewResolver(f, f, f, categorySource{f}, ticketSource{f}, nil)
}

func (f *fakeStore) addContext(active bool) uuid.UUID {
	id := uuid.New()
	f.active[id] = active
	return id
}

func (f *fakeStore) addSingleTenant(projected *uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.principals[id] = &models.Principal{ID: id, Kind: models.KindSingleTenant, ProjectedContextID: projected}
	return id
}

func (f *fakeStore) addMultiTenant(memberOf ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.principals[id] = &models.Principal{ID: id, Kind: models.KindMultiTenant}
	f.ledger[id] = memberOf
	return id
}

func TestEffectiveContextsSingleTenant(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext(true)

	t.Run("projected active context yields singleton set", func(t *testing.T) {
		pid := f.addSingleTenant(&ctxID)
		set, err := newResolver(f).EffectiveContexts(context.Background(), pid)
		require.NoError(t, err)
		assert.Len(t, set.IDs(), 1)
		assert.True(t, set.Has(ctxID))
	})

	t.Run("clear projection yields empty set", func(t *testing.T) {
		pid := f.addSingleTenant(nil)
		set, err := newResolver(f).EffectiveContexts(context.Background(), pid)
		require.NoError(t, err)
		assert.True(t, set.Empty())
	})

	t.Run("deactivated context drops out of the set", func(t *testing.T) {
		inactive := f.addContext(false)
		pid := f.addSingleTenant(&inactive)
		set, err := newResolver(f).EffectiveContexts(context.Background(), pid)
		require.NoError(t, err)
		assert.True(t, set.Empty())
	})
}

func TestEffectiveContextsMultiTenant(t *testing.T) {
	f := newFakeStore()
	a := f.addContext(true)
	b := f.addContext(true)
	c := f.addContext(false)
	pid := f.addMultiTenant(a, b, c)

	set, err := newResolver(f).EffectiveContexts(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, set.Has(a))
	assert.True(t, set.Has(b))
	assert.False(t, set.Has(c), "inactive context must not resolve")
	assert.Len(t, set.IDs(), 2)
}

func TestEffectiveContextsUnknownPrincipal(t *testing.T) {
	f := newFakeStore()
	set, err := newResolver(f).EffectiveContexts(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestEffectiveContextsFailsClosed(t *testing.T) {
	f := newFakeStore()
	ctxID := f.addContext(true)
	pid := f.addSingleTenant(&ctxID)
	f.failing = true

	set, err := newResolver(f).EffectiveContexts(context.Background(), pid)
	require.ErrorIs(t, err, visibility.ErrStoreUnavailable)
	assert.True(t, set.Empty(), "store failure must never widen visibility")
}

func TestElevatedContexts(t *testing.T) {
	f := newFakeStore()
	a := f.addContext(true)
	f.addContext(false)
	b := f.addContext(true)

	set, err := newResolver(f).ElevatedContexts(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Has(a))
	assert.True(t, set.Has(b))
	assert.Len(t, set.IDs(), 2)
}

func TestCategoriesWithin(t *testing.T) {
	f := newFakeStore()
	mine := f.addContext(true)
	other := f.addContext(true)

	global := models.Category{ID: uuid.New(), Name: "General", IsGlobal: true, Active: true}
	scoped := models.Category{ID: uuid.New(), Name: "Billing", ContextID: &mine, Active: true}
	foreign := models.Category{ID: uuid.New(), Name: "Internal", ContextID: &other, Active: true}
	inactive := models.Category{ID: uuid.New(), Name: "Old", IsGlobal: true, Active: false}
	f.categories = []models.Category{global, scoped, foreign, inactive}

	r := newResolver(f)

	t.Run("union of global and owned", func(t *testing.T) {
		list, err := r.CategoriesWithin(context.Background(), visibility.NewContextSet(mine))
		require.NoError(t, err)
		require.Len(t, list, 2)
		names := []string{list[0].Name, list[1].Name}
		assert.Contains(t, names, "General")
		assert.Contains(t, names, "Billing")
	})

	t.Run("empty set still sees global", func(t *testing.T) {
		list, err := r.CategoriesWithin(context.Background(), visibility.NewContextSet())
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "General", list[0].Name)
	})
}

func TestTicketsWithin(t *testing.T) {
	f := newFakeStore()
	mine := f.addContext(true)
	other := f.addContext(true)
	visible := models.Ticket{ID: uuid.New(), ContextID: mine}
	hidden := models.Ticket{ID: uuid.New(), ContextID: other}
	f.tickets = []models.Ticket{visible, hidden}

	r := newResolver(f)
	set := visibility.NewContextSet(mine)

	t.Run("only effective contexts", func(t *testing.T) {
		list, err := r.TicketsWithin(context.Background(), set, visibility.TicketFilter{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, visible.ID, list[0].ID)
	})

	t.Run("stale context selection yields empty list not error", func(t *testing.T) {
		list, err := r.TicketsWithin(context.Background(), set, visibility.TicketFilter{ContextID: &other})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("selection inside the set narrows to it", func(t *testing.T) {
		list, err := r.TicketsWithin(context.Background(), set, visibility.TicketFilter{ContextID: &mine})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("empty set short-circuits without querying", func(t *testing.T) {
		f.failing = true
		defer func() { f.failing = false }()
		list, err := r.TicketsWithin(context.Background(), visibility.NewContextSet(), visibility.TicketFilter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestContextSetIDsSorted(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	set := visibility.NewContextSet(a, b)
	ids := set.IDs()
	require.Len(t, ids, 2)
	assert.Equal(t, b, ids[0])
	assert.Equal(t, a, ids[1])
}
