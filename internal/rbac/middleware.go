package rbac

import (
	"net/http"

	"call-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireStaff allows ADMIN and SERVER callers only.
func RequireStaff() gin.HandlerFunc {
	return RequireAnyRole(RoleAdmin, RoleServer)
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Unknown roles are always denied.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !IsValid(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
