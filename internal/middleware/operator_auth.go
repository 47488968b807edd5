package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "meikon/internal/errors"
)

// OperatorAuthMiddleware creates a Gin middleware that validates the X-API-Key
// header against the configured operator API key.
func OperatorAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithError(c, &apperrors.AppError{
				Code:       "OPERATOR_NOT_CONFIGURED",
				Message:    "Operator endpoints are not configured",
				StatusCode: http.StatusServiceUnavailable,
			})
			return
		}
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			abortWithError(c, &apperrors.AppError{
				Code:       "INVALID_API_KEY",
				Message:    "Invalid or missing API key",
				StatusCode: http.StatusUnauthorized,
			})
			return
		}
		c.Next()
	}
}
