// Package server assembles the catalog HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/handlers"
	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/config"
	"github.com/nellyolofsson/wt2/internal/document/handler"
	"github.com/nellyolofsson/wt2/internal/media"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/nellyolofsson/wt2/pkg/logger"
	"github.com/nellyolofsson/wt2/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const welcome = "Hooray! Welcome to version 1 of this very simple RESTful API!"

// Deps are the collaborators the router is built from. Verifier and Redis
// are optional.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Verifier middleware.Verifier
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
}

var startTime = time.Now()

// NewRouter wires every route of the catalog service.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), secure.New(secureConfig()), cors.New(corsConfig()))

	if cfg.RateLimit.Enabled {
		if d.Redis != nil {
			r.Use(middleware.RedisRateLimitMiddleware(d.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		oidcOK := cfg.Keycloak.Issuer() == "" || d.Verifier != nil
		deps := gin.H{
			"store": d.Store.Kind(),
			"oidc":  oidcOK,
			"redis": cfg.Redis.Addr() == "" || d.Redis != nil,
		}
		if !oidcOK {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	handlers.RegisterSwagger(r)

	opts := handler.Options{Production: cfg.IsProduction()}
	if d.Verifier != nil {
		opts.Guards = append(opts.Guards, middleware.AuthMiddleware(d.Verifier))
	}

	api := r.Group("/api/v1")
	api.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": welcome})
	})
	media.RegisterRoutes(api.Group("/netflix"), media.NewService(d.Store), opts)

	r.NoRoute(func(c *gin.Context) {
		handler.RespondError(c, apperr.New(apperr.KindNotFound,
			apperr.WithMessage("The requested resource was not found."),
			apperr.WithData(map[string]any{"url": c.Request.URL.RequestURI()}),
		), opts.Production)
	})
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("request", logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// corsConfig is a permissive policy for browser clients of the public
// catalog. Pagination headers are exposed to scripts.
func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Location", "Link", "X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"},
		MaxAge:          12 * time.Hour,
	}
}

// secureConfig sets the browser hardening headers.
func secureConfig() secure.Config {
	return secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IENoOpen:           true,
		ReferrerPolicy:     "no-referrer",
	}
}
