package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Hkesd/mcp-memory-service/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	return g.routes(g.config.Auth, g.limiter)
}

// routes builds the mux guarded by auth and limiter.
func (g *Gateway) routes(auth AuthConfig, limiter *security.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimitMiddleware(security.BucketRequest, g.audit, limiter))
		if auth.IsConfigured() {
			r.Use(authMiddleware(auth, g.audit, limiter))
		}

		r.Get("/status", g.handleStatus())
		r.Get("/modules", g.handleListModules())
		r.Get("/config", g.handleGetConfig())

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", g.handleListMemories())
			r.Get("/{id}", g.handleGetMemory())
			r.Group(func(r chi.Router) {
				r.Use(rateLimitMiddleware(security.BucketWrite, g.audit, limiter))
				r.Post("/", g.handleStoreMemory())
				r.Delete("/{id}", g.handleDeleteMemory())
			})
		})
		r.Post("/search", g.handleSearch())

		r.Get("/sync", g.handleSyncStatus())
		r.Post("/sync", g.handleSync())
		r.Get("/events", g.handleEvents())
	})

	return r
}
