package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	entityextractor "github.com/menta2k/entity-extractor"
	"github.com/menta2k/entity-extractor/internal/config"
	"github.com/menta2k/entity-extractor/internal/monitoring"
	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/extraction"
)

// ClientFactory builds a completion client for one resolved configuration.
// Each request gets its own client so per-request credentials never leak
// between callers.
type ClientFactory func(cfg entityextractor.Config) (client.CompletionClient, error)

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	newClient  ClientFactory
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithClientFactory replaces how completion clients are built.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Server) { s.newClient = f }
}

func NewServer(cfg *config.Config, m *monitoring.Metrics, l *zap.Logger, opts ...Option) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	if m == nil {
		m = monitoring.NewMetrics()
	}
	s := &Server{
		config:    cfg,
		newClient: entityextractor.NewClient,
		metrics:   m,
		logger:    l,
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// extractorFor resolves the credential and builds an extractor for one
// request. It fails with extraction.ErrMissingCredential before any client
// exists when the backend needs a key and none is available.
func (s *Server) extractorFor(apiKey string) (*extraction.Extractor, error) {
	cfg := s.config.ExtractorConfig(apiKey)
	if entityextractor.RequiresCredential(cfg.Backend) && cfg.APIKey == "" {
		return nil, extraction.ErrMissingCredential
	}

	c, err := s.newClient(cfg)
	if err != nil {
		return nil, err
	}
	return entityextractor.NewWithClient(c, cfg, s.logger, extraction.WithRecorder(s.metrics)), nil
}
