package models

import (
	"time"

	"github.com/google/uuid"
)

// ContextType distinguishes the two organizational unit shapes.
type ContextType string

const (
	ContextTypeOrganization ContextType = "organization"
	ContextTypeDepartment   ContextType = "department"
)

// Context represents an organizational unit (tenant) that scopes tickets
// and categories. Contexts are soft-disabled via Active; they are never
// hard-deleted while referenced.
type Context struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Slug      string      `json:"slug"`
	Type      ContextType `json:"type"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ValidContextType reports whether t is one of the known context types.
func ValidContextType(t string) bool {
	switch ContextType(t) {
	case ContextTypeOrganization, ContextTypeDepartment:
		return true
	}
	return false
}
