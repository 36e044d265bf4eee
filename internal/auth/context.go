package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID     = "user_id"
	CtxAuthMethod = "auth_method"
)

type userIDKey struct{}

// UserID returns the authenticated user id set by the auth middleware.
func UserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxUserID))
}

// WithUserID stores the authenticated user on a request context, for handlers
// mounted outside gin.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user stored by WithUserID.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}
