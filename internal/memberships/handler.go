package memberships

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/pkg/response"
)

// Handler handles membership HTTP endpoints (administrative grant/revoke).
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a memberships handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// GrantRequest is the body for POST /contexts/:id/members.
type GrantRequest struct {
	PrincipalID uuid.UUID `json:"principal_id" binding:"required"`
}

// Grant handles POST /contexts/:id/members (admin only). Membership and
// projection move in one transaction: a failed projection write aborts the
// grant.
func (h *Handler) Grant(c *gin.Context) {
	contextID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid context id")
		return
	}
	var body GrantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "principal_id required")
		return
	}
	err = h.repo.Grant(c.Request.Context(), body.PrincipalID, contextID)
	switch {
	case errors.Is(err, ErrPrincipalNotFound):
		response.NotFound(c, "principal not found")
	case errors.Is(err, ErrContextNotFound):
		response.NotFound(c, "context not found")
	case errors.Is(err, ErrContextInactive):
		response.Conflict(c, "context is inactive")
	case err != nil:
		h.logger.Error("grant failed", zap.Error(err),
			zap.String("principal_id", body.PrincipalID.String()),
			zap.String("context_id", contextID.String()))
		response.Internal(c, "failed to grant membership")
	default:
		response.NoContent(c)
	}
}

// Revoke handles DELETE /contexts/:id/members/:principalId (admin only).
func (h *Handler) Revoke(c *gin.Context) {
	contextID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid context id")
		return
	}
	principalID, err := uuid.Parse(c.Param("principalId"))
	if err != nil {
		response.BadRequest(c, "invalid principal id")
		return
	}
	err = h.repo.Revoke(c.Request.Context(), principalID, contextID)
	switch {
	case errors.Is(err, ErrPrincipalNotFound):
		response.NotFound(c, "principal not found")
	case err != nil:
		h.logger.Error("revoke failed", zap.Error(err),
			zap.String("principal_id", principalID.String()),
			zap.String("context_id", contextID.String()))
		response.Internal(c, "failed to revoke membership")
	default:
		response.NoContent(c)
	}
}

// ListMembers handles GET /contexts/:id/members (admin only).
func (h *Handler) ListMembers(c *gin.Context) {
	contextID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid context id")
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), contextID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, members)
}
