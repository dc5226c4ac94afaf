package principals

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/projection"
	"github.com/nimbusdesk/backend/pkg/response"
)

// Handler handles principal HTTP endpoints (administrative).
type Handler struct {
	repo     *Repository
	guardian *projection.Guardian
	logger   *zap.Logger
}

// NewHandler creates a principals handler.
func NewHandler(repo *Repository, guardian *projection.Guardian, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, guardian: guardian, logger: logger}
}

// CreatePrincipalRequest is the body for POST /principals.
type CreatePrincipalRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	Role        string `json:"role"`
}

// Create handles POST /principals (admin only). New principals start with no
// memberships and a clear projection.
func (h *Handler) Create(c *gin.Context) {
	var body CreatePrincipalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "display_name and kind required")
		return
	}
	kind := models.PrincipalKind(body.Kind)
	if kind != models.KindSingleTenant && kind != models.KindMultiTenant {
		response.BadRequest(c, "kind must be single_tenant or multi_tenant")
		return
	}
	role := models.Role(body.Role)
	if role == "" {
		role = models.RoleAgent
	}
	p := &models.Principal{DisplayName: body.DisplayName, Kind: kind, Role: role}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		response.Internal(c, "failed to create principal")
		return
	}
	response.Created(c, p)
}

// List handles GET /principals?after_id=&limit= (admin only). Keyset paged
// by id; the response carries the last id for the next page.
func (h *Handler) List(c *gin.Context) {
	afterID := uuid.Nil
	if v := c.Query("after_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid after_id")
			return
		}
		afterID = id
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			response.BadRequest(c, "limit must be 1-500")
			return
		}
		limit = n
	}
	list, err := h.repo.List(c.Request.Context(), afterID, limit)
	if err != nil {
		response.Internal(c, "failed to load principals")
		return
	}
	if list == nil {
		list = []models.Principal{}
	}
	response.OK(c, list)
}

// Get handles GET /principals/:id (admin only).
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid principal id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load principal")
		return
	}
	if p == nil {
		response.NotFound(c, "principal not found")
		return
	}
	response.OK(c, p)
}

// Drift handles GET /principals/:id/drift (admin only). Detection is
// read-only; repair is a separate call so the two stay auditable.
func (h *Handler) Drift(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid principal id")
		return
	}
	report, err := h.guardian.DetectDrift(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("drift detection failed", zap.Error(err), zap.String("principal_id", id.String()))
		response.Internal(c, "failed to detect drift")
		return
	}
	response.OK(c, report)
}

// Repair handles POST /principals/:id/repair (admin only). Safe to call
// repeatedly; a second run reports a no-op.
func (h *Handler) Repair(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid principal id")
		return
	}
	result, err := h.guardian.RepairDrift(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("repair failed", zap.Error(err), zap.String("principal_id", id.String()))
		response.Internal(c, "failed to repair drift")
		return
	}
	response.OK(c, result)
}
