package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"cardbored-api/internal/handler"
	"cardbored-api/internal/metrics"
	"cardbored-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	DeckHandler     *handler.DeckHandler
	AdminHandler    *handler.AdminHandler
	AdminMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.AdminKeyHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", metrics.Handler())

	// Public endpoints are served at /<name> and /api/<name>.
	public := func(r chi.Router) {
		if cfg.DeckHandler == nil {
			return
		}
		r.Post("/process-decklist", cfg.DeckHandler.ProcessDecklist)
		r.Get("/process-decklist", cfg.DeckHandler.Usage)
		r.Post("/parse-decklist", cfg.DeckHandler.ParseDecklist)
		r.Post("/card-prices", cfg.DeckHandler.CardPrices)
		r.Post("/reclassify", cfg.DeckHandler.Reclassify)
		r.Get("/card-proxy", cfg.DeckHandler.CardProxy)
	}
	r.Group(public)

	r.Route("/api", func(r chi.Router) {
		public(r)

		if cfg.Handler != nil {
			r.Get("/status", cfg.Handler.Status)
			r.Get("/health", cfg.Handler.Health)
		}

		r.Route("/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					if cfg.AdminMiddleware != nil {
						r.Use(cfg.AdminMiddleware)
					}
					r.Get("/index", cfg.AdminHandler.GetIndex)
					r.Post("/index/refresh", cfg.AdminHandler.RefreshIndex)
				})
			}
		})
	})

	return r
}
