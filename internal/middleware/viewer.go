package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduschedule-api/internal/visibility"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
	"github.com/noah-isme/eduschedule-api/pkg/response"
)

// ContextViewerKey is the gin context key storing the resolved viewer.
const ContextViewerKey = "viewer"

type viewerResolver interface {
	Resolve(ctx context.Context, userID string) (visibility.Viewer, error)
}

// Viewer resolves the caller's profile and class memberships once per request. It must run
// after JWT.
func Viewer(resolver viewerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		v, err := resolver.Resolve(c.Request.Context(), claims.UserID())
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextViewerKey, v)
		c.Next()
	}
}

// ViewerFromContext returns the viewer attached by Viewer, or nil.
func ViewerFromContext(c *gin.Context) visibility.Viewer {
	value, exists := c.Get(ContextViewerKey)
	if !exists {
		return nil
	}
	v, _ := value.(visibility.Viewer)
	return v
}
