package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduschedule-api/internal/models"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
	"github.com/noah-isme/eduschedule-api/pkg/response"
)

// RequireRoles admits only viewers whose stored role is listed. It must run after Viewer, so
// the decision uses the profile role rather than the token claim.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v := ViewerFromContext(c)
		if v == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[v.Role()]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(v.Role())+" may not use this endpoint"))
			c.Abort()
			return
		}
		c.Next()
	}
}
