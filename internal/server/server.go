// Package server hosts the tvbridge HTTP API: core health and module
// endpoints, Prometheus metrics, and every module's mounted routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/registry"
	"github.com/HerbHall/tvbridge/internal/version"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// Server is the tvbridge HTTP server.
type Server struct {
	httpServer *http.Server
	registry   *registry.Registry
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server listening on addr. A nil gatherer disables /metrics.
func New(addr string, reg *registry.Registry, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		registry: reg,
		gatherer: gatherer,
		logger:   logger,
		mux:      mux,
	}

	s.registerCoreRoutes()
	s.mountModuleRoutes()

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/modules", s.handleModules)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// mountModuleRoutes registers all module routes under /api/v1/{module}.
func (s *Server) mountModuleRoutes() {
	for module, routes := range s.registry.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, module, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("module", module),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Start serves HTTP requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status  string                         `json:"status"`
	Service string                         `json:"service"`
	Version map[string]string              `json:"version"`
	Modules map[string]plugin.HealthStatus `json:"modules,omitempty"`
}

// handleHealth aggregates module health. Any unhealthy module turns the
// overall status to "degraded"; the endpoint itself always answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	modules := s.registry.Health(r.Context())
	status := "ok"
	for _, h := range modules {
		if h.Status != "healthy" {
			status = "degraded"
			break
		}
	}
	w.Header().Set(version.Header, version.Short())
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:  status,
		Service: "tvbridge",
		Version: version.Map(),
		Modules: modules,
	})
}

// handleModules returns the enabled modules.
func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	plugins := s.registry.All()
	info := make([]plugin.PluginInfo, 0, len(plugins))
	for _, p := range plugins {
		info = append(info, p.Info())
	}
	w.Header().Set(version.Header, version.Short())
	WriteJSON(w, http.StatusOK, info)
}
