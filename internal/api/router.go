package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashguard/internal/api/handlers"
	apimiddleware "dashguard/internal/api/middleware"
	"dashguard/internal/config"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

// requestTimeout bounds plain HTTP requests; websocket routes are exempt
const requestTimeout = 60 * time.Second

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	cache    *cache.RedisCache
	logger   *logger.Logger
}

// NewRouter creates a new Router instance
func NewRouter(cfg config.Config, h *handlers.Handlers, c *cache.RedisCache, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		cache:    c,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting needs the shared counter store
	if r.config.RateLimit.Enabled {
		if r.cache != nil {
			router.Use(apimiddleware.RateLimiter(r.cache, r.config.RateLimit, r.config.Session.Header, r.logger))
		} else {
			r.logger.Warn().Msg("rate limiting enabled but redis is not configured, skipping")
		}
	}

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
		pub.Handle("/metrics", promhttp.Handler())
	})

	// API v1 routes (session required)
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(apimiddleware.SessionGate(r.config.Session, r.logger))

		// Long-lived connections; the timeout middleware would write to a hijacked conn
		api.Get("/map/ws", r.handlers.Map.Surface)
		api.Get("/events/ws", r.handlers.Streaming.HandleWebSocket)

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(requestTimeout))

			// Threat list and selection
			api.Route("/threats", func(threats chi.Router) {
				threats.Get("/", r.handlers.Threats.List)
				threats.Get("/all", r.handlers.Threats.All)
				threats.Post("/{id}/select", r.handlers.Threats.Select)
			})
			api.Get("/selection", r.handlers.Threats.GetSelection)
			api.Delete("/selection", r.handlers.Threats.ClearSelection)

			// Filter criteria
			api.Route("/filters", func(filters chi.Router) {
				filters.Get("/", r.handlers.Filters.Get)
				filters.Patch("/", r.handlers.Filters.Patch)
				filters.Delete("/", r.handlers.Filters.Reset)
			})

			// Statistics
			api.Route("/stats", func(stats chi.Router) {
				stats.Get("/", r.handlers.Stats.Get)
				stats.Get("/countries", r.handlers.Stats.Countries)
			})

			// Threat map
			api.Route("/map", func(m chi.Router) {
				m.Get("/", r.handlers.Map.Get)
				m.Get("/markers", r.handlers.Map.Markers)
				m.Get("/countries", r.handlers.Map.Countries)
				m.Get("/geojson", r.handlers.Map.GeoJSON)
				m.Put("/basemap", r.handlers.Map.SetBasemap)
				m.Put("/fullscreen", r.handlers.Map.SetFullscreen)
				m.Put("/viewport", r.handlers.Map.SetViewport)
				m.Put("/filter", r.handlers.Map.SetFilter)
			})

			// Feed
			api.Get("/feed", r.handlers.Feed.Status)
			api.Post("/feed/reload", r.handlers.Feed.Reload)

			api.Get("/events/stats", r.handlers.Streaming.GetStats)
		})
	})

	return router
}
