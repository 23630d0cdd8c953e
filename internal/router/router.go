package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health  *handler.HealthHandler
	Subject *handler.SubjectHandler
	Session *handler.SessionHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// submitLimiter bounds answer submissions per caller; nil disables it.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	submitLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(metrics.Middleware())

	// Apply brotli middleware globally. SSE and WebSocket requests pass through.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", metrics.Handler())

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	// ─── 1. Authenticated API ──────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(tokens))
	{
		api.GET("/subjects", middleware.CacheControl("private, max-age=60"), handlers.Subject.GetAll)
	}

	// ─── 2. Sessions (owner or reviewer, never cached) ─────────────────
	sessions := api.Group("/sessions")
	sessions.Use(middleware.CacheControl("no-store"))
	{
		sessions.GET("", handlers.Session.ListMine)
		sessions.POST("", handlers.Session.Start)
		sessions.GET("/:session_id", handlers.Session.Get)
		sessions.GET("/:session_id/questions", handlers.Session.Questions)
		sessions.GET("/:session_id/state", handlers.Session.State)
		sessions.POST("/:session_id/complete", handlers.Session.Complete)
		sessions.GET("/:session_id/results", handlers.Session.Results)

		answers := []gin.HandlerFunc{handlers.Session.Submit}
		if submitLimiter != nil {
			answers = append([]gin.HandlerFunc{submitLimiter.Middleware()}, answers...)
		}
		sessions.POST("/:session_id/answers", answers...)
	}

	// ─── 3. Review Group (JWT + reviewer role) ─────────────────────────
	review := api.Group("/review")
	review.Use(middleware.RequireReviewer())
	{
		review.GET("/subjects/:subject_id/monitor", handlers.Monitor.MonitorSubjectSSE)
	}

	// ─── 4. WebSocket Group (token via header or ?token=) ──────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireJWT(tokens))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
