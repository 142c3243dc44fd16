package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/config"
	"github.com/JakeFAU/toolshelf/internal/metrics"
	"github.com/JakeFAU/toolshelf/internal/news"
)

// StaticList is the curated list snapshot plus its refresh trigger.
type StaticList interface {
	Entries() []catalog.StaticEntry
	Reload() (int, error)
}

// Crawls submits crawl jobs and reports their state.
type Crawls interface {
	Submit(ctx context.Context) (catalog.CrawlJob, error)
	Job(ctx context.Context, id string) (catalog.CrawlJob, error)
}

// IconResolver finds a site icon for a URL.
type IconResolver interface {
	Resolve(ctx context.Context, rawURL string) (catalog.Icon, bool)
}

// NewsFeed returns trending repositories.
type NewsFeed interface {
	Top(ctx context.Context) []news.Item
}

// Accelerator rewrites a download URL onto a faster mirror.
type Accelerator interface {
	Accelerate(rawURL string) string
}

// Deps groups the collaborators behind the HTTP handlers. Ready is optional
// and backs /readyz.
type Deps struct {
	List        StaticList
	Store       catalog.ToolStore
	Crawls      Crawls
	Icons       IconResolver
	News        NewsFeed
	Accelerator Accelerator
	Clock       catalog.Clock
	Ready       func(ctx context.Context) error
}

// Server wires HTTP handlers to the catalog, the dispatcher and the icon
// resolver.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

const readyTimeout = 2 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeoutOrDefault(cfg.Server.WriteTimeout)))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", s.listTools)
		r.Get("/tools/{name}", s.getTool)
		r.Get("/crawl/{job_id}", s.getCrawl)
		r.Get("/favicon", s.favicon)
		r.Get("/news", s.news)

		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Put("/tools/{name}", s.putTool)
			r.Post("/tools/{name}/icon", s.refreshIcon)
			r.Post("/crawl", s.submitCrawl)
			r.Post("/catalog/refresh", s.refreshCatalog)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
