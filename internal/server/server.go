// Package server exposes the HTTP webhook surface: Twilio voice webhooks,
// inbound email ingestion, health, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxbridge/voxbridge/internal/email"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/voice"
)

// Config carries the dependencies and listen settings for the server.
type Config struct {
	Host string
	Port int

	Controller *voice.Controller
	Ingestor   *email.Ingestor
	DB         *store.DB
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Registry   *prometheus.Registry

	// TwilioAuthToken and VerifySignatures enable webhook signature
	// checks on the Twilio routes.
	TwilioAuthToken  string
	VerifySignatures bool

	// WebhookBaseURL is the public base URL Twilio signed against.
	WebhookBaseURL string
}

// Server is the HTTP front end.
type Server struct {
	config   Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	server   *http.Server
	listener net.Listener
}

// New builds a Server. Controller, Ingestor, and Logger are required.
func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("server: voice controller is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("server: email ingestor is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("server: logger is required")
	}
	if cfg.VerifySignatures && cfg.TwilioAuthToken == "" {
		return nil, errors.New("server: signature verification requires an auth token")
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	return &Server{
		config:  cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Handler returns the route table. It is exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/twilio/voice", s.withRequest("voice_start", s.handleVoiceStart))
	mux.HandleFunc("POST /api/twilio/voice/respond", s.withRequest("voice_respond", s.handleVoiceRespond))
	mux.HandleFunc("POST /api/twilio/voice/status", s.withRequest("voice_status", s.handleVoiceStatus))

	mux.HandleFunc("POST /api/email/inbound", s.withRequest("email_inbound", s.handleEmailInbound))
	mux.HandleFunc("GET /api/email", s.withRequest("email_list", s.handleEmailList))
	mux.HandleFunc("GET /api/calls", s.withRequest("call_list", s.handleCallList))
	mux.HandleFunc("GET /api/calls/{sid}", s.withRequest("call_get", s.handleCallGet))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.config.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}

// Start listens and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	s.server = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "http server error", "error", err)
		}
	}()

	s.logger.Info(ctx, "http server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// withRequest decorates a handler with a request ID and webhook metrics.
func (s *Server) withRequest(endpoint string, h func(http.ResponseWriter, *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.AddRequestID(r.Context(), uuid.NewString())
		outcome := h(w, r.WithContext(ctx))
		if s.metrics != nil {
			s.metrics.WebhookRequests.WithLabelValues(endpoint, outcome).Inc()
		}
	}
}
