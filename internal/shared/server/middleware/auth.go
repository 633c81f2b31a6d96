package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/auth"
	"supercv-backend/internal/shared/server/respond"
)

const (
	accountIDKey    = "accountId"
	accountEmailKey = "accountEmail"
	accountNameKey  = "accountName"
	accountAvatar   = "accountAvatar"
	anonymousKey    = "isAnonymous"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Auth resolves the caller identity from a bearer token. Requests without an
// Authorization header continue as anonymous; malformed or invalid tokens are rejected.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.Set(anonymousKey, true)
			c.Next()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") || verifier == nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		claims, err := verifier.Verify(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(accountIDKey, claims.Sub)
		if claims.Email != "" {
			c.Set(accountEmailKey, claims.Email)
		}
		if claims.Name != "" {
			c.Set(accountNameKey, claims.Name)
		}
		if claims.Picture != "" {
			c.Set(accountAvatar, claims.Picture)
		}
		c.Set(anonymousKey, false)
		c.Next()
	}
}

// RequireAccount rejects anonymous callers.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if AccountIDFromContext(c) == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
			return
		}
		c.Next()
	}
}

// AccountIDFromContext fetches the account ID set by the auth middleware.
// It is empty for anonymous callers.
func AccountIDFromContext(c *gin.Context) string {
	return stringFromContext(c, accountIDKey)
}

// AccountEmailFromContext fetches the account email set by the auth middleware.
func AccountEmailFromContext(c *gin.Context) string {
	return stringFromContext(c, accountEmailKey)
}

// AccountNameFromContext fetches the display name set by the auth middleware.
func AccountNameFromContext(c *gin.Context) string {
	return stringFromContext(c, accountNameKey)
}

// AccountAvatarFromContext fetches the avatar reference set by the auth middleware.
func AccountAvatarFromContext(c *gin.Context) string {
	return stringFromContext(c, accountAvatar)
}

func stringFromContext(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
