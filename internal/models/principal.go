package models

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalKind distinguishes principals bound to exactly one context from
// those holding any number of memberships.
type PrincipalKind string

const (
	KindSingleTenant PrincipalKind = "single_tenant"
	KindMultiTenant  PrincipalKind = "multi_tenant"
)

// Role is the platform role carried on the principal descriptor.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAgent     Role = "agent"
	RoleRequester Role = "requester"
)

// Principal represents an authenticated actor. The projected_* columns are a
// denormalized cache of the single-tenant principal's sole membership; the
// memberships table stays authoritative for access decisions.
type Principal struct {
	ID                   uuid.UUID     `json:"id"`
	DisplayName          string        `json:"display_name"`
	Kind                 PrincipalKind `json:"kind"`
	Role                 Role          `json:"role"`
	ProjectedContextID   *uuid.UUID    `json:"projected_context_id,omitempty"`
	ProjectedContextName *string       `json:"projected_context_name,omitempty"`
	ProjectedContextType *string       `json:"projected_context_type,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Descriptor is the authenticated-principal descriptor supplied by the
// session layer on every request.
type Descriptor struct {
	ID   uuid.UUID     `json:"id"`
	Kind PrincipalKind `json:"kind"`
	Role Role          `json:"role"`
}

// ProjectionRef is the projected-context triple as one value, used for
// optimistic compare-and-set updates of the projection columns.
type ProjectionRef struct {
	ContextID   uuid.UUID `json:"context_id"`
	ContextName string    `json:"context_name"`
	ContextType string    `json:"context_type"`
}

// Projection returns the principal's current projection, or nil when the
// projection columns are clear.
func (p *Principal) Projection() *ProjectionRef {
	if p.ProjectedContextID == nil {
		return nil
	}
	ref := ProjectionRef{ContextID: *p.ProjectedContextID}
	if p.ProjectedContextName != nil {
		ref.ContextName = *p.ProjectedContextName
	}
	if p.ProjectedContextType != nil {
		ref.ContextType = *p.ProjectedContextType
	}
	return &ref
}
