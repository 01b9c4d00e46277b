package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/config"
)

// ContextKeyAuthType holds how the request was authenticated.
const ContextKeyAuthType = "auth_type"

// AuthType indicates how the caller was authenticated
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
)

// Middleware guards the API with a single bearer token whose SHA-256 hash
// is configured. Without a configured hash every request passes.
type Middleware struct {
	tokenHash   string
	publicPaths map[string]bool
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(cfg config.Auth) *Middleware {
	return &Middleware{
		tokenHash: strings.TrimSpace(cfg.TokenHash),
		publicPaths: map[string]bool{
			"/health": true,
			"/ping":   true,
		},
	}
}

// Enabled reports whether a token is required.
func (m *Middleware) Enabled() bool {
	return m.tokenHash != ""
}

// Handler returns a Gin middleware handler that authenticates requests.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() || m.publicPaths[c.Request.URL.Path] {
			c.Set(ContextKeyAuthType, AuthTypeNone)
			c.Next()
			return
		}

		if token := bearerToken(c); TokenMatches(token, m.tokenHash) {
			c.Set(ContextKeyAuthType, AuthTypeBearer)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication required",
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetAuthType reports how the request was authenticated, none when the
// middleware did not run.
func GetAuthType(c *gin.Context) AuthType {
	if t, exists := c.Get(ContextKeyAuthType); exists {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeNone
}
