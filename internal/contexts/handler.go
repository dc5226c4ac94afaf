package contexts

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimbusdesk/backend/internal/middleware"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
	"github.com/nimbusdesk/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 2-64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Handler handles context HTTP endpoints.
type Handler struct {
	repo     *Repository
	resolver *visibility.Resolver
}

// NewHandler creates a contexts handler.
func NewHandler(repo *Repository, resolver *visibility.Resolver) *Handler {
	return &Handler{repo: repo, resolver: resolver}
}

// CreateContextRequest is the body for POST /contexts.
type CreateContextRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
	Type string `json:"type" binding:"required"`
}

// Create handles POST /contexts (admin only).
func (h *Handler) Create(c *gin.Context) {
	var body CreateContextRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name, slug and type required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 2-64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	if !models.ValidContextType(body.Type) {
		response.BadRequest(c, "type must be organization or department")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1-255 characters")
		return
	}
	ctxRow := &models.Context{Name: body.Name, Slug: body.Slug, Type: models.ContextType(body.Type)}
	if err := h.repo.Create(c.Request.Context(), ctxRow); err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique") {
			response.Conflict(c, "A context with this slug already exists for this type")
			return
		}
		response.Internal(c, "failed to create context")
		return
	}
	response.Created(c, ctxRow)
}

// List handles GET /contexts (admin only; ?include_inactive=true to include
// disabled contexts).
func (h *Handler) List(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"
	list, err := h.repo.List(c.Request.Context(), includeInactive)
	if err != nil {
		response.Internal(c, "failed to load contexts")
		return
	}
	response.OK(c, list)
}

// MyContexts handles GET /me/contexts. Returns the caller's effective
// contexts; an empty list is a legitimate outcome, not an error.
func (h *Handler) MyContexts(c *gin.Context) {
	principal := middleware.Principal(c)
	set, err := h.resolver.EffectiveContexts(c.Request.Context(), principal.ID)
	if err != nil {
		// Fail closed: no access rather than an error page.
		response.OK(c, []models.Context{})
		return
	}
	if set.Empty() {
		response.OK(c, []models.Context{})
		return
	}
	list, err := h.repo.ListByIDs(c.Request.Context(), set.IDs())
	if err != nil {
		response.OK(c, []models.Context{})
		return
	}
	response.OK(c, list)
}

// Deactivate handles PATCH /contexts/:id/deactivate (admin only). Soft
// disable; the context's tickets and categories drop out of every
// principal's visible set immediately.
func (h *Handler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Reactivate handles PATCH /contexts/:id/reactivate (admin only).
func (h *Handler) Reactivate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid context id")
		return
	}
	ok, err := h.repo.SetActive(c.Request.Context(), id, active)
	if err != nil {
		response.Internal(c, "failed to update context")
		return
	}
	if !ok {
		response.NotFound(c, "context not found")
		return
	}
	response.NoContent(c)
}
