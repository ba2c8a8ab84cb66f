package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/metrics"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// maxBodyBytes matches the API Gateway payload limit
const maxBodyBytes = 6 << 20

// BatchService is what the handlers need from the ingestion layer
type BatchService interface {
	Submit(ctx context.Context, tenantID, jobID string, body []byte) (*models.SubmitResponse, error)
	Status(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error)
}

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// Server handles HTTP requests
type Server struct {
	config  config.ServerConfig
	service BatchService
	logger  zerolog.Logger
	auth    Middleware
	metrics bool
	handler http.Handler
	server  *http.Server
}

// Option customizes a Server
type Option func(*Server)

// WithAuth sets the middleware that resolves the caller's tenant on batch routes
func WithAuth(m Middleware) Option {
	return func(s *Server) { s.auth = m }
}

// WithMetrics exposes the prometheus registry on /metrics
func WithMetrics() Option {
	return func(s *Server) { s.metrics = true }
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, svc BatchService, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		service: svc,
		logger:  logger.With().Str("component", "http").Logger(),
		auth:    func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", metrics.Instrument("/health", http.HandlerFunc(s.handleHealth)))
	if s.metrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	submit := s.auth(http.HandlerFunc(s.handleSubmit))
	status := s.auth(http.HandlerFunc(s.handleStatus))
	mux.Handle("POST /batches", metrics.Instrument("/batches", submit))
	mux.Handle("GET /batches", metrics.Instrument("/batches", status))
	// paths served by the first deployment
	mux.Handle("POST /employees", metrics.Instrument("/employees", submit))
	mux.Handle("GET /processes", metrics.Instrument("/processes", status))

	s.handler = CorrelationID(s.logger)(Recoverer(RequestLogging(mux)))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Handler returns the full middleware chain, for adapters that do not listen themselves
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
