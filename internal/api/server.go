// Package api exposes the HTTP interface of the control plane: the
// authenticated admin registry, the public catalog, job submission and the
// result event stream.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/connections"
	"github.com/mipworks/algo-control-plane/internal/metrics"
	"github.com/mipworks/algo-control-plane/internal/router"
	"github.com/mipworks/algo-control-plane/internal/service"
)

// Server wires HTTP handlers to the registry service, the job router and
// the event hub.
type Server struct {
	mux    chi.Router
	svc    *service.Service
	jobs   *router.Router
	hub    *EventHub
	conns  connections.Store
	logger *zap.Logger
	ready  func() bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	svc *service.Service,
	jobs *router.Router,
	hub *EventHub,
	conns connections.Store,
	logger *zap.Logger,
	ready func() bool,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Server{
		svc:    svc,
		jobs:   jobs,
		hub:    hub,
		conns:  conns,
		logger: logger,
		ready:  ready,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Reads answer with the full record for authenticated callers and with
	// the public projection for anonymous ones; writes always require auth.
	r.Route("/algorithms", func(r chi.Router) {
		r.Post("/", s.createAlgorithm)
		r.Get("/", s.listAlgorithms)
		r.Route("/{algorithm_id}", func(r chi.Router) {
			r.Get("/", s.getAlgorithm)
			r.Patch("/", s.updateAlgorithm)
			r.Delete("/", s.deleteAlgorithm)
		})
	})

	r.Post("/process/{algorithm_id}", s.process)
	r.Get("/events", s.events)

	s.mux = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}

// limitParam parses the optional limit query parameter.
func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
