package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/explorable-research/explorable-backend/internal/auth"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

// Authenticator resolves a credential to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (string, auth.Method, error)
}

// AuthMiddleware validates a Firebase ID token or API key and stores the user id.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abortUnauthorized(c, "missing authorization token")
			return
		}

		userID, method, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.New(c.Request.Context()).Warnf("authenticate", "rejected credential: %v", err)
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(auth.CtxUserID, userID)
		c.Set(auth.CtxAuthMethod, string(method))
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"code": "UNAUTHORIZED", "message": message},
	})
}

// extractToken reads a Bearer token, falling back to the X-API-Key header.
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimSpace(bearerToken[7:])
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}
