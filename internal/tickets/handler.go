package tickets

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/middleware"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
	"github.com/nimbusdesk/backend/pkg/response"
)

// Handler handles ticket HTTP endpoints.
type Handler struct {
	repo      *Repository
	resolver  *visibility.Resolver
	validator *consistency.Validator
	logger    *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(repo *Repository, resolver *visibility.Resolver, validator *consistency.Validator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, resolver: resolver, validator: validator, logger: logger}
}

// List handles GET /tickets?from=&to=&status=&context_id=. Results are
// scoped to the caller's effective contexts; a context selection outside
// that set yields an empty list, never an error. Admins list through the
// elevated resolver mode.
func (h *Handler) List(c *gin.Context) {
	principal := middleware.Principal(c)

	filter, ok := parseTicketFilter(c)
	if !ok {
		return
	}

	var set visibility.ContextSet
	var err error
	if principal.Role == models.RoleAdmin {
		set, err = h.resolver.ElevatedContexts(c.Request.Context())
	} else {
		set, err = h.resolver.EffectiveContexts(c.Request.Context(), principal.ID)
	}
	if err != nil {
		response.OK(c, []models.Ticket{})
		return
	}
	list, err := h.resolver.TicketsWithin(c.Request.Context(), set, filter)
	if err != nil {
		response.OK(c, []models.Ticket{})
		return
	}
	if list == nil {
		list = []models.Ticket{}
	}
	response.OK(c, list)
}

func parseTicketFilter(c *gin.Context) (visibility.TicketFilter, bool) {
	var f visibility.TicketFilter
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "from must be RFC3339")
			return f, false
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "to must be RFC3339")
			return f, false
		}
		f.To = &t
	}
	if v := c.Query("status"); v != "" {
		if !models.ValidTicketStatus(v) {
			response.BadRequest(c, "unknown status")
			return f, false
		}
		f.Status = v
	}
	if v := c.Query("context_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid context_id")
			return f, false
		}
		f.ContextID = &id
	}
	return f, true
}

// Get handles GET /tickets/:id. RequireTicketVisibility has already loaded
// the ticket and checked the caller's effective contexts.
func (h *Handler) Get(c *gin.Context) {
	t := c.MustGet(ContextTicket).(*models.Ticket)
	response.OK(c, t)
}

// CreateTicketRequest is the body for POST /tickets.
type CreateTicketRequest struct {
	Subject    string     `json:"subject" binding:"required"`
	ContextID  uuid.UUID  `json:"context_id" binding:"required"`
	CategoryID *uuid.UUID `json:"category_id"`
	Priority   string     `json:"priority"`
}

// Create handles POST /tickets. The insert and the post-condition context
// check run in one transaction: a ticket recorded outside its creator's
// effective set never commits.
func (h *Handler) Create(c *gin.Context) {
	principal := middleware.Principal(c)

	var body CreateTicketRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "subject and context_id required")
		return
	}
	priority := body.Priority
	if priority == "" {
		priority = models.TicketPriorityNormal
	}

	t := &models.Ticket{
		Subject:    body.Subject,
		ContextID:  body.ContextID,
		CategoryID: body.CategoryID,
		CreatedBy:  principal.ID,
		Status:     models.TicketStatusOpen,
		Priority:   priority,
	}

	ctx := c.Request.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		response.Internal(c, "failed to create ticket")
		return
	}
	defer tx.Rollback(ctx)

	if err := h.repo.CreateTx(ctx, tx, t); err != nil {
		h.logger.Error("ticket insert failed", zap.Error(err))
		response.Internal(c, "failed to create ticket")
		return
	}

	violation, err := h.validator.ValidateTicketContext(ctx, t)
	if err != nil {
		h.logger.Error("ticket validation failed", zap.Error(err), zap.String("ticket_id", t.ID.String()))
		response.Internal(c, "failed to create ticket")
		return
	}
	if violation != nil {
		response.UnprocessableEntity(c, "context outside your effective set", violation)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		response.Internal(c, "failed to create ticket")
		return
	}
	response.Created(c, t)
}
