package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/adapters/handler/http/middleware"
)

const healthCheckTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDependencies struct {
	CompletionHandler *CompletionHandler
	GoalHandler       *GoalHandler
	StatsHandler      *StatsHandler
	Store             Pinger
	ReadDB            Pinger
	Redis             *redis.Client
	RateLimit         int
	StartTime         time.Time
}

func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-User-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	if deps.Redis != nil && deps.RateLimit > 0 {
		router.Use(middleware.RateLimiterMiddleware(deps.Redis, deps.RateLimit, 1*time.Minute))
	}

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		check := func(p Pinger) string {
			if p == nil || p.Ping(ctx) != nil {
				return "unreachable"
			}
			return "connected"
		}

		dbStatus := check(deps.Store)
		readStatus := check(deps.ReadDB)

		redisStatus := "connected"
		if deps.Redis == nil || deps.Redis.Ping(ctx).Err() != nil {
			redisStatus = "unreachable"
		}

		// Redis only backs the cache and the limiter, so losing it degrades
		// the service without taking it down.
		statusCode := http.StatusOK
		status := "ok"
		switch {
		case dbStatus == "unreachable" || readStatus == "unreachable":
			statusCode = http.StatusServiceUnavailable
			status = "down"
		case redisStatus == "unreachable":
			status = "degraded"
		}

		c.JSON(statusCode, gin.H{
			"status":        status,
			"database":      dbStatus,
			"read_database": readStatus,
			"redis":         redisStatus,
			"uptime":        time.Since(deps.StartTime).String(),
		})
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.RequireUser())
	{
		deps.CompletionHandler.RegisterRoutes(apiV1)
		deps.GoalHandler.RegisterRoutes(apiV1)
		deps.StatsHandler.RegisterRoutes(apiV1)
	}

	return router
}
