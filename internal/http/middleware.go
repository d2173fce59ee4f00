package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/services"
)

const identityKey = "identity"

var allowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func CORS() gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}
	return cors.New(config)
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("request")
	}
}

func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// AuthRequired validates the bearer token and attaches the caller identity
// to the request context.
func AuthRequired(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondMessage(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		identity, err := auth.Verify(strings.TrimSpace(token))
		if err != nil {
			respondMessage(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).IsAdmin() {
			respondMessage(c, http.StatusForbidden, "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	if value, ok := c.Get(identityKey); ok {
		if identity, ok := value.(domain.Identity); ok {
			return identity
		}
	}
	return domain.Identity{}
}
