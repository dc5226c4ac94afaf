package tickets

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimbusdesk/backend/internal/middleware"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/visibility"
	"github.com/nimbusdesk/backend/pkg/response"
)

// ContextTicket is the gin context key for the ticket loaded by
// RequireTicketVisibility.
const ContextTicket = "ticket"

// RequireTicketVisibility validates that the caller's effective contexts
// include the ticket's context. Call after JWT. An invisible or missing
// ticket answers 404 either way, so existence never leaks across contexts.
// Admins pass through the elevated resolver mode.
func RequireTicketVisibility(repo *Repository, resolver *visibility.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid ticket id")
			c.Abort()
			return
		}
		t, err := repo.GetByID(c.Request.Context(), ticketID)
		if err != nil || t == nil {
			response.NotFound(c, "ticket not found")
			c.Abort()
			return
		}

		principal := middleware.Principal(c)
		var set visibility.ContextSet
		if principal.Role == models.RoleAdmin {
			set, err = resolver.ElevatedContexts(c.Request.Context())
		} else {
			set, err = resolver.EffectiveContexts(c.Request.Context(), principal.ID)
		}
		// Fail closed: a resolver error denies rather than grants.
		if err != nil || !set.Has(t.ContextID) {
			response.NotFound(c, "ticket not found")
			c.Abort()
			return
		}
		c.Set(ContextTicket, t)
		c.Next()
	}
}
