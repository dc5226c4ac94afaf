package categories

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

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Handler handles category HTTP endpoints.
type Handler struct {
	repo     *Repository
	resolver *visibility.Resolver
}

// NewHandler creates a categories handler.
func NewHandler(repo *Repository, resolver *visibility.Resolver) *Handler {
	return &Handler{repo: repo, resolver: resolver}
}

// List handles GET /categories. Non-admin callers see the global categories
// plus those owned by their effective contexts; admins see every active
// context's categories via the elevated resolver mode. Store failures
// degrade to an empty list.
func (h *Handler) List(c *gin.Context) {
	principal := middleware.Principal(c)

	var set visibility.ContextSet
	var err error
	if principal.Role == models.RoleAdmin {
		set, err = h.resolver.ElevatedContexts(c.Request.Context())
	} else {
		set, err = h.resolver.EffectiveContexts(c.Request.Context(), principal.ID)
	}
	if err != nil {
		response.OK(c, []models.Category{})
		return
	}
	list, err := h.resolver.CategoriesWithin(c.Request.Context(), set)
	if err != nil {
		response.OK(c, []models.Category{})
		return
	}
	if list == nil {
		list = []models.Category{}
	}
	response.OK(c, list)
}

// CreateCategoryRequest is the body for POST /categories.
type CreateCategoryRequest struct {
	Name         string     `json:"name" binding:"required"`
	Slug         string     `json:"slug" binding:"required"`
	IsGlobal     bool       `json:"is_global"`
	ContextID    *uuid.UUID `json:"context_id"`
	DisplayOrder int        `json:"display_order"`
	ParentID     *uuid.UUID `json:"parent_id"`
}

// Create handles POST /categories (admin only). A category is global or
// owned by exactly one context, never both and never neither.
func (h *Handler) Create(c *gin.Context) {
	var body CreateCategoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 2-64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	if body.IsGlobal == (body.ContextID != nil) {
		response.BadRequest(c, "category must be either global or owned by exactly one context")
		return
	}
	cat := &models.Category{
		Name:         strings.TrimSpace(body.Name),
		Slug:         body.Slug,
		IsGlobal:     body.IsGlobal,
		ContextID:    body.ContextID,
		DisplayOrder: body.DisplayOrder,
		ParentID:     body.ParentID,
	}
	if err := h.repo.Create(c.Request.Context(), cat); err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique") {
			response.Conflict(c, "A category with this slug already exists in this scope")
			return
		}
		if strings.Contains(err.Error(), "foreign key") {
			response.BadRequest(c, "context or parent category does not exist")
			return
		}
		response.Internal(c, "failed to create category")
		return
	}
	response.Created(c, cat)
}

// Deactivate handles PATCH /categories/:id/deactivate (admin only).
func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid category id")
		return
	}
	ok, err := h.repo.SetActive(c.Request.Context(), id, false)
	if err != nil {
		response.Internal(c, "failed to update category")
		return
	}
	if !ok {
		response.NotFound(c, "category not found")
		return
	}
	response.NoContent(c)
}
