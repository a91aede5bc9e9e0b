package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// CubeService is the view of the pipeline the server needs: readiness and the
// query stack for the cube currently being served.
type CubeService interface {
	sharedobs.ReadinessChecker
	Querier() (domain.Querier, error)
}

// Server exposes health, readiness, metrics, and the forecast query API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 query routes. Cross-origin requests are accepted only from
// allowedOrigins.
func NewServer(addr string, svc CubeService, allowedOrigins []string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      withCORS(allowedOrigins, mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	a := &api{svc: svc, logger: logger}
	mux.HandleFunc("GET /api/v1/cube", a.handleCube)
	mux.HandleFunc("GET /api/v1/variables/{name}/snapshot", a.handleSnapshot)
	mux.HandleFunc("GET /api/v1/variables/{name}/series", a.handleSeries)
	mux.HandleFunc("GET /api/v1/variables/{name}/stats", a.handleStats)
	mux.HandleFunc("GET /api/v1/variables/{name}/histogram", a.handleHistogram)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
