package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nimbusdesk/backend/internal/auth"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/pkg/response"
)

const (
	// ContextPrincipal is the key for the principal descriptor in gin context.
	ContextPrincipal = "principal"
)

// JWT returns a middleware that validates the session token and sets the
// principal descriptor in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextPrincipal, claims.Descriptor())
		c.Next()
	}
}

// Principal returns the descriptor set by the JWT middleware. It panics when
// called on a route that skipped the middleware.
func Principal(c *gin.Context) models.Descriptor {
	return c.MustGet(ContextPrincipal).(models.Descriptor)
}
