package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership links a principal to a context. The (principal_id, context_id)
// pair is unique; inserts are upserts so the ledger keeps set semantics.
type Membership struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	ContextID   uuid.UUID `json:"context_id"`
	CreatedAt   time.Time `json:"created_at"`
}
