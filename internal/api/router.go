// Package api exposes the HTTP surface of the service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/auth"
	"github.com/toonranks/toonranks/internal/cache"
	"github.com/toonranks/toonranks/internal/forum"
	"github.com/toonranks/toonranks/internal/media"
	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/internal/readinglist"
	"github.com/toonranks/toonranks/internal/series"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

// Per-route request limits, per client IP per minute
const (
	limitThreadCreate = 3
	limitReply        = 6
	limitHeart        = 30
	limitMediaUpload  = 10
	limitSignup       = 5
	limitLogin        = 5
	limitResend       = 3
)

// HealthChecker reports the state of a backing service
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the services served by the router
type Deps struct {
	Auth         *auth.Service
	Forum        *forum.Service
	Media        *media.Service
	Series       *series.Service
	ReadingLists *readinglist.Service
	Database     HealthChecker
	Cache        *cache.Cache
	CORSOrigins  []string
	RateLimit    bool
}

// Router sets up API routes
type Router struct {
	deps    Deps
	authMW  *auth.Middleware
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Deps) *Router {
	registerValidators()
	r := &Router{
		deps:   deps,
		authMW: auth.NewMiddleware(deps.Auth.Tokens(), deps.Auth.Users()),
		logger: logging.WithComponent("api-router"),
	}
	if deps.RateLimit {
		r.limiter = NewRateLimiter()
	}
	return r
}

// Engine builds a gin engine with middleware and routes installed
func (r *Router) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinLogger(logging.WithComponent("http")))
	engine.Use(telemetry.GinMiddleware())
	engine.Use(metrics.GinMiddleware())
	if len(r.deps.CORSOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     r.deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.SetupRoutes(engine)
	return engine
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)

	requireUser := r.authMW.RequireUser()
	optionalUser := r.authMW.OptionalUser()
	requireAdmin := r.authMW.RequireAdmin()
	limit := r.limiter.Limit

	authGroup := engine.Group("/auth")
	{
		authGroup.POST("/signup", limit(limitSignup), r.signup)
		authGroup.POST("/login", limit(limitLogin), r.login)
		authGroup.GET("/verify-email", r.verifyEmail)
		authGroup.POST("/resend-verification", limit(limitResend), r.resendVerification)
	}

	admin := engine.Group("/admin", requireUser, requireAdmin)
	{
		admin.PATCH("/users/:id/role", r.setRole)
	}

	seriesGroup := engine.Group("/series")
	{
		seriesGroup.GET("", r.listSeries)
		seriesGroup.GET("/rankings", r.rankings)
		seriesGroup.GET("/search", r.searchSeries)
		seriesGroup.GET("/summary/:id", r.seriesSummary)
		seriesGroup.POST("", requireUser, requireAdmin, r.createSeries)
		seriesGroup.PUT("/:id", requireUser, requireAdmin, r.updateSeries)
		seriesGroup.DELETE("/:id", requireUser, requireAdmin, r.deleteSeries)
	}

	details := engine.Group("/series-details")
	{
		details.GET("/:id", optionalUser, r.seriesDetail)
		details.POST("/:id/vote", requireUser, r.vote)
		details.PUT("/:id/synopsis", requireUser, requireAdmin, r.setSynopsis)
	}

	lists := engine.Group("/reading-lists", requireUser)
	{
		lists.GET("/me", r.myReadingLists)
		lists.POST("", r.createReadingList)
		lists.POST("/:id/items", r.addReadingListItem)
		lists.DELETE("/:id/items/:series_id", r.removeReadingListItem)
		lists.DELETE("/:id", r.deleteReadingList)
	}

	f := engine.Group("/forum")
	{
		f.GET("/threads", r.listThreads)
		f.GET("/threads-paged", r.listThreadsPaged)
		f.POST("/threads", requireUser, limit(limitThreadCreate), r.createThread)
		f.GET("/threads/:id", optionalUser, r.getThread)
		f.GET("/threads/:id/posts-paged", optionalUser, r.getThreadPaged)
		f.PATCH("/threads/:id", requireUser, r.updateThread)
		f.PATCH("/threads/:id/lock", requireUser, r.lockThread)
		f.PATCH("/threads/:id/settings", requireUser, r.threadSettings)
		f.DELETE("/threads/:id", requireUser, r.deleteThread)

		f.POST("/threads/:id/posts", requireUser, limit(limitReply), r.createPost)
		f.PATCH("/threads/:id/posts/:post_id", requireUser, r.updatePost)
		f.DELETE("/threads/:id/posts/:post_id", requireUser, r.deletePost)
		f.DELETE("/threads/:id/posts/:post_id/mine", requireUser, r.deleteOwnPost)
		f.POST("/threads/:id/posts/:post_id/heart", requireUser, limit(limitHeart), r.toggleHeart)

		f.GET("/series-search", r.forumSeriesSearch)
		f.POST("/media/upload", requireUser, limit(limitMediaUpload), r.uploadMedia)
	}
}

// healthHandler reports database and cache reachability
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "OK", "service": "toonranks-api"}

	if r.deps.Database != nil {
		if err := r.deps.Database.Health(ctx); err != nil {
			r.logger.Warn("Database health check failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "DEGRADED"
			body["database"] = "unavailable"
		} else {
			body["database"] = "ok"
		}
	}
	if r.deps.Cache != nil {
		if err := r.deps.Cache.Health(ctx); err != nil {
			body["cache"] = "unavailable"
		} else {
			body["cache"] = "ok"
		}
	} else {
		body["cache"] = "disabled"
	}
	c.JSON(status, body)
}
