package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/waitlist/internal/observability/context"
	"go.uber.org/zap"
)

const (
	HeaderAdminSecret = "X-Admin-Secret"
	bearerPrefix      = "Bearer "
)

// CORS lets the embeddable widget call the public API from any site.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderAdminSecret)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// CronAuthRequired accepts "Authorization: Bearer <CRON_SECRET>". Without a
// configured secret the endpoint is open outside production and closed in it.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.CronSecret
		if secret == "" {
			if s.cfg.IsProduction() {
				s.log.Warn("cron request rejected, CRON_SECRET not set")
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
			s.log.Warn("unauthorized cron request", zap.String("path", c.Request.URL.Path))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "system", "cron")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func adminSecret(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderAdminSecret))
}

// withProject tags the request context so log lines carry the project id.
func withProject(c *gin.Context, projectID string) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return
	}
	ctx := obscontext.WithProjectID(c.Request.Context(), projectID)
	c.Request = c.Request.WithContext(ctx)
}
