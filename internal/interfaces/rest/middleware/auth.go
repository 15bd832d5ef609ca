package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/logger"
)

// PrincipalKey is the gin context key holding the verified *auth.Principal.
const PrincipalKey = "principal"

// BearerAuth requires an "Authorization: Bearer <token>" header that
// verifier accepts.
func BearerAuth(verifier auth.Verifier, log logger.Logger) gin.HandlerFunc {
	log = log.WithField("middleware", "bearer_auth")

	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))

		principal, err := auth.SafeVerify(c.Request.Context(), verifier, token)
		if err != nil {
			log.Warnf("Rejecting %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
