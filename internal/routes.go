package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "leadlens/api/v1"
	"leadlens/internal/config"
	"leadlens/internal/http"
	"leadlens/internal/http/middleware"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// All public endpoints share this permissive CORS setup for cross-origin access.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for public event ingestion API (70 requests per minute per IP)
	// 70/min = ~1.2 req/sec - handles legitimate tracking traffic while preventing abuse
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public ingestion config
	// Rate limiting + CORS; CORS runs first so 4xx responses carry CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	logger := srv.GetLogger()

	// Admin config: API-key protected, no Sec-Fetch-Site (server-to-server)
	adminAPIConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			middleware.AdminAPIKeyAuth(cfg, logger),
		},
	}

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC INGESTION ROUTES ===
	srv.Post("/api/v1/track", v1.TrackEventHandler, publicAPIConfig)
	srv.Options("/api/v1/track", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/api/v1/form-events", v1.FormEventHandler, publicAPIConfig)
	srv.Options("/api/v1/form-events", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/api/v1/leads", v1.CreateLeadHandler, publicAPIConfig)
	srv.Options("/api/v1/leads", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === PROTECTED ADMIN API ROUTES ===
	srv.Get("/admin/api/analytics/overview", http.OverviewIndexAction, adminAPIConfig)
	srv.Get("/admin/api/analytics/funnel", http.FunnelIndexAction, adminAPIConfig)
	srv.Get("/admin/api/analytics/steps", http.StepsIndexAction, adminAPIConfig)
	srv.Get("/admin/api/analytics/realtime", http.RealtimeIndexAction, adminAPIConfig)
	srv.Get("/admin/api/analytics/attribution", http.AttributionIndexAction, adminAPIConfig)
}
