// Package httpapi wires the HTTP transport (Gin) to the fortune service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, compression,
// metrics, rate limiting, CORS and security headers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-fortune-backend/internal/config"
	"github.com/tbourn/go-fortune-backend/internal/http/handlers"
	"github.com/tbourn/go-fortune-backend/internal/http/middleware"
	"github.com/tbourn/go-fortune-backend/internal/services"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	maxBody     = 64 << 10
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip response compression
//  7. Metrics
//  8. Rate limiter (per client/IP, health and metrics exempt)
//  9. CORS and Security headers
//
// The API group adds NoStore; /health and /metrics stay cacheable.
func RegisterRoutes(r *gin.Engine, svc *services.FortuneService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		MaskParams:  []string{"birth_place"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBody))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{metricsPath})))

	r.Use(middleware.Metrics())
	r.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP()).
		Exempt(healthPath, metricsPath)
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET(healthPath, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(svc, svc, svc, cfg.Engine.GenerateTimeout)
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.NoStore())
	{
		api.POST("/fortunes", h.GenerateFortune)
		api.GET("/stats", h.GetStats)
		api.POST("/maintenance/cleanup", h.RunCleanup)
	}
}

// corsMiddleware allows every origin when none is configured and echoes
// allowlisted origins otherwise.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderClientID},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header (simple health checks).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body size at maxBytes using http.MaxBytesReader.
// Oversized bodies make downstream reads fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
