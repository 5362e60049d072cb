// Package server exposes the anonymization pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/veil/internal/metrics"
	"github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/pipeline"
)

// DefaultMaxBodyBytes caps request bodies unless WithMaxBodyBytes is given.
const DefaultMaxBodyBytes = 10 << 20

// Anonymizer runs one anonymization request.
type Anonymizer interface {
	Anonymize(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// EntityCatalog describes what the analyzer can detect.
type EntityCatalog interface {
	Languages() []string
	SupportedEntities(language string) ([]string, error)
}

// AuditStatus reports audit log health.
type AuditStatus interface {
	Dropped() int64
}

// Server holds the dependencies of the HTTP API.
type Server struct {
	svc          Anonymizer
	catalog      EntityCatalog
	audit        AuditStatus
	corsOrigins  []string
	maxBodyBytes int64
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithCatalog enables GET /supported-entities and language details on /health.
func WithCatalog(c EntityCatalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithAuditStatus adds audit log drop counts to /health?detail=true.
func WithAuditStatus(a AuditStatus) Option {
	return func(s *Server) { s.audit = a }
}

// WithMaxBodyBytes caps the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer builds a Server around svc.
func NewServer(svc Anonymizer, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		corsOrigins:  []string{"http://localhost:3000"},
		maxBodyBytes: DefaultMaxBodyBytes,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns a new http.Handler (chi router with all middleware and
// routes). Each call builds an independent router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(metrics.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	r.Post("/anonymize/", s.handleAnonymize)
	r.Post("/anonymize", s.handleAnonymize)

	r.Get("/health", s.handleHealth)
	r.Get("/supported-entities", s.handleSupportedEntities)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
