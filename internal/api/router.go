// Package api builds the dashboard HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/meetings"
	"github.com/sbi-steve/backend/internal/middleware"
	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/internal/realtime"
	"github.com/sbi-steve/backend/pkg/response"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterDeps are the handlers and services mounted on the engine.
type RouterDeps struct {
	JWT            *auth.JWTService
	Meetings       *meetings.Handler
	Sessions       *SessionsHandler
	Hub            *realtime.Hub // nil disables /ws
	Metrics        http.Handler  // nil disables /metrics
	Checks         map[string]HealthCheck
	AllowedOrigins string
}

// NewRouter returns the gin engine serving the dashboard API.
func NewRouter(deps RouterDeps, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", health(deps.Checks, logger))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Hub != nil {
		router.GET("/ws", realtime.ServeWs(deps.Hub, logger, deps.JWT.Validate))
	}

	api := router.Group("", middleware.JWT(deps.JWT))
	api.Use(middleware.RequireRole(models.RoleAdmin, models.RoleViewer))
	{
		api.GET("/guilds/:guild_id/meetings", middleware.RequireGuildAccess("guild_id"), deps.Meetings.ListByGuild)
		api.GET("/meetings/:id", deps.Meetings.GetByID)
		api.GET("/meetings/:id/transcript", deps.Meetings.GetTranscript)
		api.GET("/meetings/:id/recordings/:index/download-url", deps.Meetings.GenerateDownloadURL)

		api.GET("/sessions", deps.Sessions.List)
		api.POST("/guilds/:guild_id/session/stop",
			middleware.RequireRole(models.RoleAdmin),
			deps.Sessions.Stop)
	}
	return router
}

func health(checks map[string]HealthCheck, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		status := gin.H{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				response.Fail(c, http.StatusServiceUnavailable, name+" unavailable")
				return
			}
			status[name] = "ok"
		}
		response.OK(c, status)
	}
}
