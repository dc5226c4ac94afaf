package visibility

import (
	"sort"

	"github.com/google/uuid"
)

// ContextSet is an effective-context set: the contexts a principal may
// currently see data within. Empty is a valid, fully-authorized outcome.
type ContextSet map[uuid.UUID]struct{}

// NewContextSet builds a set from the given IDs.
func NewContextSet(ids ...uuid.UUID) ContextSet {
	s := make(ContextSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s ContextSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Empty reports whether the set has no members.
func (s ContextSet) Empty() bool {
	return len(s) == 0
}

// IDs returns the members in a stable order.
func (s ContextSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
