package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	listingsettlement "key2key/contexts/marketplace/listing-settlement"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "key2key/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	settlement listingsettlement.Module
	auth       Authenticator
	http       *http.Server

	checksMu sync.RWMutex
	checks   map[string]ReadinessCheck
}

// ReadinessCheck probes one dependency; a non-nil error marks the process
// not ready.
type ReadinessCheck func(ctx context.Context) error

func New(
	settlement listingsettlement.Module,
	auth Authenticator,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		settlement: settlement,
		auth:       auth,
		checks:     make(map[string]ReadinessCheck),
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.accessLog(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)

	s.mux.HandleFunc("POST /v1/listings", s.handleCreateListing)
	s.mux.HandleFunc("GET /v1/listings/{listing_id}", s.handleGetListing)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/publish", s.handlePublishListing)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/reserve", s.handleReserveListing)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/transactions", s.handleStartTransaction)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/cancel", s.handleCancelListing)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/archive", s.handleArchiveListing)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/verify", s.handleVerifyListing)
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/assignment", s.handleAssignBroker)

	s.mux.HandleFunc("GET /v1/transactions/{transaction_id}", s.handleGetTransaction)
	s.mux.HandleFunc("POST /v1/transactions/{transaction_id}/refund", s.handleRefundTransaction)

	s.mux.HandleFunc("POST /v1/assignments/{assignment_id}/acknowledge", s.handleAcknowledgeAssignment)

	s.mux.HandleFunc("GET /v1/audit/{entity_type}/{entity_id}", s.handleListAuditTrail)

	s.mux.HandleFunc("POST /v1/webhooks/payments", s.handleGatewayWebhook)
}

// Handler exposes the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// AddReadinessCheck registers a dependency probe served by /readyz.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = check
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	s.checksMu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make(map[string]string, len(names))
	status := http.StatusOK
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	s.checksMu.RUnlock()

	if status != http.StatusOK {
		s.logger.Warn("readiness check failed",
			"event", "http_readiness_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"checks", results,
		)
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			return
		}
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request served",
			"event", "http_request",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
