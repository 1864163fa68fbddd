package bootstrap

import (
	"strings"
	"time"

	httpadapter "newsletter_server/adapter/in/http"
	"newsletter_server/config"
	"newsletter_server/infra/middleware"
	"newsletter_server/pkg/logger"
	"newsletter_server/pkg/ratelimit"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI assembles the HTTP server.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
	})

	// Order matters: recovery first, then request identity, then logging
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityHeaders())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowOrigins != "" && allowOrigins != "*",
	}))

	// Health (no auth)
	healthHandler := httpadapter.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	// Pass a nil interface (not a typed nil) when Redis is down so the
	// handler can detect the missing state store
	var states httpadapter.OAuthStateStore
	if deps.StateStore != nil {
		states = deps.StateStore
	}
	connHandler := httpadapter.NewConnectionHandler(deps.OAuthService, deps.SyncService, states)
	catalogHandler := httpadapter.NewCatalogHandler(deps.CatalogService, deps.StatsService)

	// OAuth callback has no bearer token: Google redirects the browser here
	public := app.Group("/api/v1")
	connHandler.RegisterCallback(public)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	// Sync triggers fan out into Gmail API calls, so they get their own
	// per-user budget. Limiter is nil without Redis and the check no-ops.
	var syncLimiter *ratelimit.SlidingWindowLimiter
	if deps.Redis != nil {
		syncLimiter = ratelimit.NewSlidingWindowLimiter(deps.Redis, 5, time.Minute)
	}

	connHandler.Register(api, middleware.RateLimit(syncLimiter, "mail-sync"))
	catalogHandler.Register(api)

	logger.Info("api server initialized")
	return app
}
