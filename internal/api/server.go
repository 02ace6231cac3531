// Package api is the HTTP surface: one RPC-style endpoint with tenant
// resolution, auth, CSRF and rate limiting, plus friendly URL aliases and
// the shortlink redirect page.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/bundle"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/diag"
	"github.com/bracketline/eventserve/internal/event"
	"github.com/bracketline/eventserve/internal/form"
	"github.com/bracketline/eventserve/internal/guard"
	"github.com/bracketline/eventserve/internal/shortlink"
	"github.com/bracketline/eventserve/internal/store"
)

// Server bundles every service behind the HTTP surface.
type Server struct {
	registry   *config.Registry
	store      *store.Store
	events     *event.Service
	bundles    *bundle.Service
	shortlinks *shortlink.Service
	ingest     *analytics.Ingest
	reporter   *analytics.Reporter
	forms      form.Provider
	csrf       *guard.CSRF
	limiter    *guard.RateLimiter
	diag       *diag.Logger

	httpServer *http.Server
	now        func() time.Time
}

// Deps carries the service graph into NewServer.
type Deps struct {
	Registry   *config.Registry
	Store      *store.Store
	Events     *event.Service
	Bundles    *bundle.Service
	Shortlinks *shortlink.Service
	Ingest     *analytics.Ingest
	Reporter   *analytics.Reporter
	Forms      form.Provider
	CSRF       *guard.CSRF
	Limiter    *guard.RateLimiter
	Diag       *diag.Logger
}

func NewServer(d Deps) *Server {
	forms := d.Forms
	if forms == nil {
		forms = form.Unconfigured{}
	}
	return &Server{
		registry:   d.Registry,
		store:      d.Store,
		events:     d.Events,
		bundles:    d.Bundles,
		shortlinks: d.Shortlinks,
		ingest:     d.Ingest,
		reporter:   d.Reporter,
		forms:      forms,
		csrf:       d.CSRF,
		limiter:    d.Limiter,
		diag:       d.Diag,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// Router builds the chi mux. The whole contract lives on "/" plus the two
// alias path shapes; everything else is middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Get("/", s.handleRootGet)
	r.Post("/", s.handleRootPost)

	// Friendly URL aliases: /<alias> and /<brand>/<alias>.
	r.Get("/{seg1}", s.handleAlias)
	r.Get("/{seg1}/{seg2}", s.handleAlias)

	return r
}

// allowedOrigins lists every configured tenant hostname plus localhost dev
// origins.
func (s *Server) allowedOrigins() []string {
	snap := s.registry.Snapshot()
	origins := []string{"http://localhost:5173", "http://localhost:8080"}
	for _, t := range snap.Tenants() {
		for _, h := range t.Hostnames {
			origins = append(origins, "https://"+h)
		}
	}
	return origins
}

// Start serves until ctx is cancelled, then drains with a 10 s grace period.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
