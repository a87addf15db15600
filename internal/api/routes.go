package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/newsletter/internal/pkg/httputil"
)

// SetupRoutes configures the router. limiter may be nil when no redis is
// configured; broadcastToken may be empty to disable the operator endpoint.
func SetupRoutes(h *Handlers, limiter *RateLimiter, broadcastToken string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// The subscribe form posts from browsers; redemption links are plain GETs.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/newsletter", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/subscribe", h.Subscribe)
			r.Get("/confirm", h.Confirm)
			r.Get("/unsubscribe", h.Unsubscribe)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireBearer(broadcastToken))
			r.Post("/broadcast", h.Broadcast)
		})
	})

	return r
}

// requireBearer guards operator endpoints with a static bearer token. An
// empty configured token disables the endpoint entirely rather than
// leaving it open.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				httputil.NotFound(w, "not found")
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
