package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		val, ok := c.Get(ContextPrincipal)
		if !ok {
			response.Unauthorized(c, "missing principal context")
			c.Abort()
			return
		}
		d, _ := val.(models.Descriptor)
		if _, ok := allowed[d.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
