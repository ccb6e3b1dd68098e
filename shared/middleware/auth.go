package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/btfbank/bank-api/shared/apperr"
)

const userIDKey = "userId"

// TokenVerifier resolves a bearer token to the id of the user it was issued to.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithAppError(c, apperr.Unauthorized("Authorization header required"))
			c.Abort()
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			RespondWithAppError(c, apperr.Unauthorized("Invalid authorization header format"))
			c.Abort()
			return
		}

		userID, err := verifier.VerifySubject(strings.TrimSpace(token))
		if err != nil {
			RespondWithAppError(c, err)
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok
}
