// Package api exposes the HTTP interface for the trawler service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/simmonsip/trawler/internal/config"
	"github.com/simmonsip/trawler/internal/notify"
	"github.com/simmonsip/trawler/internal/store"
	"github.com/simmonsip/trawler/internal/trawl"
)

// Runner is the engine surface the API depends on.
type Runner interface {
	Run(ctx context.Context, params trawl.RunParams) (trawl.RunReport, error)
	SelfTest() []trawl.SelfTestResult
	Info(ctx context.Context) trawl.InfoReport
}

// Server wires HTTP handlers to the engine and record store.
type Server struct {
	router   chi.Router
	runner   Runner
	records  store.Records
	images   trawl.ImageSource
	notifier notify.Publisher
	cfg      config.Config
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

// ServerConfig carries the Server's collaborators. Images defaults to the
// record store; Notifier defaults to the no-op publisher.
type ServerConfig struct {
	Runner   Runner
	Records  store.Records
	Images   trawl.ImageSource
	Notifier notify.Publisher
	Config   config.Config
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Images == nil {
		cfg.Images = cfg.Records
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoOp{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		runner:   cfg.Runner,
		records:  cfg.Records,
		images:   cfg.Images,
		notifier: cfg.Notifier,
		cfg:      cfg.Config,
		logger:   cfg.Logger,
		gatherer: cfg.Gatherer,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	// Runs themselves are bounded by deadlineMs; the handler timeout only
	// guards against a wedged client connection.
	r.Use(timeoutMiddleware(5 * time.Minute))
	if s.cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(s.cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/trawl", s.runTrawl)

		r.Route("/competitors", func(r chi.Router) {
			r.Get("/", s.listCompetitors)
			r.Post("/", s.replaceCompetitors)
			r.Post("/add", s.addCompetitor)
			r.Delete("/", s.deleteCompetitor)
		})
		r.Route("/keywords", func(r chi.Router) {
			r.Get("/", s.listKeywords)
			r.Post("/", s.replaceKeywords)
			r.Post("/add", s.addKeyword)
			r.Delete("/", s.deleteKeyword)
		})
		r.Get("/images", s.listImages)
		r.Post("/seed", s.seed)
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
	// Readiness tracks the record store: a run against an unreadable
	// store would silently scan nothing.
	if _, err := s.records.Competitors(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
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
