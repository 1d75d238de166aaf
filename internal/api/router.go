// Package api serves the extraction runs, ingredient snapshots and
// observation history over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/menu-ingredients/internal/monitoring"
	"github.com/sells-group/menu-ingredients/internal/store"
)

// Options configures the router.
type Options struct {
	CORSOrigins []string
	Registry    *prometheus.Registry
	Timeout     time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	store     store.Store
	collector *monitoring.Collector
}

// NewRouter builds the read API.
func NewRouter(st store.Store, opts Options) http.Handler {
	s := &Server{store: st, collector: monitoring.NewCollector(st)}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/stats", s.stats)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/{runID}", s.getRun)
	})
	r.Route("/items/{itemID}", func(r chi.Router) {
		r.Get("/ingredients", s.currentIngredients)
		r.Get("/observations", s.observations)
	})

	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	return r
}
