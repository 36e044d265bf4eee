package http

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidURL, domain.CodeInvalidFormat, domain.CodeValidation, domain.CodeTemplateNotFound:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidState, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// writeError renders err as the error envelope. Server-side failures are
// logged with their cause; only the client-safe message is returned.
func writeError(c *gin.Context, operation string, err error) {
	code := domain.CodeOf(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		logger.New(c.Request.Context()).Error(operation, err)
	}

	body := gin.H{"code": code, "message": domain.MessageOf(err)}
	var de *domain.Error
	if errors.As(err, &de) && de.Details != nil {
		body["details"] = de.Details
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": body})
}

// Recovery turns panics into a generic INTERNAL_ERROR envelope and logs the stack.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.New(c.Request.Context()).Errorf("panic", "recovered=%v stack=%s", recovered, debug.Stack())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": domain.CodeInternal, "message": "internal server error"},
		})
	})
}
