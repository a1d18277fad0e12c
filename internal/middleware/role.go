package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(models.Role)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireGuildAccess rejects requests whose token does not cover the guild
// named by the param route parameter.
func RequireGuildAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !claims.CanAccessGuild(c.Param(param)) {
			response.Forbidden(c, "no access to this guild")
			c.Abort()
			return
		}
		c.Next()
	}
}
