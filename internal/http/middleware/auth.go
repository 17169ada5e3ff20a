// README: Firebase auth middleware; verifies bearer tokens and exposes caller identity.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rideflow/internal/infra"
)

const (
	ctxUIDKey  = "auth_uid"
	ctxRoleKey = "auth_role"
)

// Auth verifies the Authorization bearer token with Firebase and stashes the
// caller's UID and role claim on the request context. Requests without a valid
// token are rejected before any handler runs.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUIDKey, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRoleKey, role)
		}
		c.Next()
	}
}

// RequireRole gates a route group to callers carrying the given role claim.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CallerUID returns the authenticated Firebase UID, or "" if unauthenticated.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUIDKey)
}

// CallerRole returns the caller's role claim, or "" if none was set.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRoleKey)
}
