package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the verified token claims.
const ClaimsKey = "claims"

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="catalog"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": http.StatusUnauthorized, "message": msg})
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			unauthorized(c, "missing Authorization header")
			return
		}
		scheme, token, ok := strings.Cut(auth, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			unauthorized(c, "invalid Authorization header")
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			unauthorized(c, "failed to parse claims")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// subject returns the "sub" claim set by AuthMiddleware, if any.
func subject(c *gin.Context) string {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return ""
	}
	cm, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	sub, _ := cm["sub"].(string)
	return sub
}

// clientKey prefers the authenticated subject and falls back to the client IP.
func clientKey(c *gin.Context) string {
	if sub := subject(c); sub != "" {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
