package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gradia-app/gradia-backend/internal/config"
	"github.com/gradia-app/gradia-backend/internal/handler"
	"github.com/gradia-app/gradia-backend/internal/middleware"
	"github.com/gradia-app/gradia-backend/internal/response"
	"github.com/gradia-app/gradia-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Result  *handler.ResultHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Learner Group (JWT) ────────────────────────────────────────
	learnerAPI := router.Group("/api/v1/learner")
	learnerAPI.Use(middleware.RequireLearnerJWT(authService))
	{
		learnerAPI.POST("/tests/:test_id/session", handlers.Session.StartSession)
		learnerAPI.GET("/tests/:test_id/session", handlers.Session.GetSessionState)
		learnerAPI.POST("/sessions/:session_id/started", handlers.Session.MarkStarted)
		learnerAPI.PATCH("/sessions/:session_id", handlers.Session.SaveProgress)
		learnerAPI.POST("/sessions/:session_id/submit", handlers.Session.SubmitSession)
		learnerAPI.GET("/tests/:test_id/submission", handlers.Result.GetSubmission)
	}

	// ─── 2. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerWSAuth(authService))
	{
		ws.GET("/learner/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// Rate limiter for the results listing (heavier query, 60/min per IP).
	resultsLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 3. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService), resultsLimiter.Middleware())
	{
		teacherAPI.GET("/tests/:test_id/submissions", handlers.Result.ListSubmissions)
	}

	return router
}
