package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/proktora/proktora-backend/internal/config"
	"github.com/proktora/proktora-backend/internal/handler"
	"github.com/proktora/proktora-backend/internal/middleware"
	"github.com/proktora/proktora-backend/internal/response"
	"github.com/proktora/proktora-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt   *handler.AttemptHandler
	Integrity *handler.IntegrityHandler
	Sync      *handler.SyncHandler
	Credit    *handler.CreditHandler
	WS        *handler.WSHandler
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

	// Rate limiter for admission (10 starts per minute per user). Offline
	// clients reconnecting in bulk hit /sync instead, which stays unlimited.
	startLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Exam Group (User JWT) ──────────────────────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(middleware.RequireUserJWT(authService))
	{
		examAPI.POST("/packages/:package_id/attempts", startLimiter.Middleware(), handlers.Attempt.StartAttempt)
		examAPI.GET("/attempts/active", handlers.Attempt.GetActiveAttempt)
		examAPI.GET("/attempts/:attempt_id/offline-bundle", handlers.Attempt.GetOfflineBundle)
		examAPI.PUT("/attempts/:attempt_id/answers/:question_id", handlers.Attempt.SaveAnswer)
		examAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)

		examAPI.POST("/attempts/:attempt_id/violations", handlers.Integrity.ReportViolation)
		examAPI.GET("/attempts/:attempt_id/violations", handlers.Integrity.ListViolations)

		examAPI.POST("/sync", handlers.Sync.ApplyBatch)
		examAPI.GET("/credits", handlers.Credit.GetCredits)
	}

	// ─── 2. WebSocket Group (User WS Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUserWSAuth(authService))
	{
		ws.GET("/exam/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
