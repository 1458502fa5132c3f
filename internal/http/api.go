package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"college-auth/internal/domain"
	"college-auth/internal/service"
	"college-auth/internal/token"
)

// TokenIssuer mints and checks access tokens.
type TokenIssuer interface {
	Generate(identity domain.Identity) (token.Token, error)
	Validate(raw string) (domain.Identity, error)
}

// Handler wires HTTP routes to the auth services.
type Handler struct {
	registration   service.RegistrationService
	auth           service.AuthService
	tokens         TokenIssuer
	allowedOrigins []string
	logger         logrus.FieldLogger
}

func NewHandler(registration service.RegistrationService, auth service.AuthService, tokens TokenIssuer, allowedOrigins []string, logger logrus.FieldLogger) *Handler {
	return &Handler{
		registration:   registration,
		auth:           auth,
		tokens:         tokens,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(accessLogMiddleware(h.logger))
	router.Use(corsMiddleware(h.allowedOrigins))

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		authGroup := api.Group("/auth")
		authGroup.POST("/signup", h.signup)
		authGroup.POST("/login", h.login)

		protected := authGroup.Group("")
		protected.Use(RequireAuth(h.tokens))
		protected.GET("/me", h.me)
		protected.GET("/admin/ping", RequireRole(domain.Authority(domain.RoleAdmin)), h.adminPing)
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAny := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			allowAny = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAny {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[strings.ToLower(origin)]; ok && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func accessLogMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
