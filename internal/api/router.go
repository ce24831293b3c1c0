// Package api exposes the prompt switcher over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/prompts"
	"prompt-switcher/internal/settings"
	"prompt-switcher/internal/switcher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Switcher is the service surface the API drives.
type Switcher interface {
	ListAgents(ctx context.Context) ([]prompts.Metadata, error)
	Optimize(ctx context.Context, text string, agentID *prompts.ID) (*switcher.OptimizeResult, error)
	Settings(ctx context.Context) (*settings.Settings, error)
	SaveSettings(ctx context.Context, update *settings.Settings) error
	ClearSettings(ctx context.Context) error
	VerifyModel(ctx context.Context, apiKey, model string) error
	Status() switcher.Status
}

// ReadyCheck reports whether a dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// Deps holds all dependencies required to build the HTTP handler.
type Deps struct {
	Switcher    Switcher
	Logger      logger.Logger
	Gatherer    prometheus.Gatherer
	ReadyChecks map[string]ReadyCheck
	// RequestTimeout bounds each API call; zero leaves it to the server.
	RequestTimeout time.Duration
}

type handlers struct {
	switcher    Switcher
	logger      logger.Logger
	readyChecks map[string]ReadyCheck
}

// NewRouter builds the root handler: probes, metrics and /api/v1.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{
		switcher:    deps.Switcher,
		logger:      deps.Logger.WithFields(map[string]interface{}{"component": "api"}),
		readyChecks: deps.ReadyChecks,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Mount("/api/v1", newAPIRouter(h, deps.RequestTimeout))
	return r
}

func newAPIRouter(h *handlers, timeout time.Duration) chi.Router {
	r := chi.NewRouter()
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/agents", h.listAgents)
	r.Post("/optimize", h.optimize)

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.getSettings)
		r.Put("/", h.putSettings)
		r.Delete("/", h.deleteSettings)
		r.Post("/verify", h.verifySettings)
	})
	return r
}
