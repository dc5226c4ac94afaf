package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket statuses.
const (
	TicketStatusOpen     = "open"
	TicketStatusPending  = "pending"
	TicketStatusResolved = "resolved"
	TicketStatusClosed   = "closed"
)

// Ticket priorities.
const (
	TicketPriorityLow    = "low"
	TicketPriorityNormal = "normal"
	TicketPriorityHigh   = "high"
	TicketPriorityUrgent = "urgent"
)

// Ticket represents a support ticket. Number is the sequential human-facing
// identifier. ContextID records the context the creator was acting in at
// creation time and is checked by the consistency validator.
type Ticket struct {
	ID         uuid.UUID  `json:"id"`
	Number     int64      `json:"number"`
	Subject    string     `json:"subject"`
	ContextID  uuid.UUID  `json:"context_id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ValidTicketStatus reports whether s is a known ticket status.
func ValidTicketStatus(s string) bool {
	switch s {
	case TicketStatusOpen, TicketStatusPending, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}
