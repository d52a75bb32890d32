package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
)

const (
	UserIDKey      = "user_id"
	UsernameKey    = "username"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
	TokenQueryKey  = "token"
	unauthorizedID = "UNAUTHORIZED"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates JWT tokens locally with the shared secret.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth returns a Gin middleware that validates JWT tokens.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c.Request)
		if token == "" {
			abortUnauthorized(c, "missing authorization token")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set(UserIDKey, claims.Identity())
		c.Set(UsernameKey, claims.Username)

		c.Next()
	}
}

// ExtractToken reads the bearer token from the Authorization header, falling
// back to the token query parameter used by WebSocket clients that cannot set
// handshake headers.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get(AuthHeaderKey); authHeader != "" {
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	}
	return r.URL.Query().Get(TokenQueryKey)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    unauthorizedID,
			"message": message,
		},
	})
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get(UserIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(UsernameKey); exists {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}
