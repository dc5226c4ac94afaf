package models

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies tickets. A category is either global (visible in every
// context) or owned by exactly one context: is_global = true iff context_id
// is null. Slug is unique among global categories and unique within a
// context for scoped ones.
type Category struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	IsGlobal     bool       `json:"is_global"`
	ContextID    *uuid.UUID `json:"context_id,omitempty"`
	Active       bool       `json:"active"`
	DisplayOrder int        `json:"display_order"`
	ParentID     *uuid.UUID `json:"parent_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
