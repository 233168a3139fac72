package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// queryToken carries the access token for browser websocket upgrades,
// which cannot set an Authorization header.
const queryToken = "access_token"

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return requireToken(m, false)
}

// RequireAccessTokenOrQuery is RequireAccessToken that also accepts the
// token from the access_token query parameter.
func RequireAccessTokenOrQuery(m *Manager) gin.HandlerFunc {
	return requireToken(m, true)
}

func requireToken(m *Manager, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader(authorizationHeader))
		if tok == "" && allowQuery {
			tok = strings.TrimSpace(c.Query(queryToken))
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

func bearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}
