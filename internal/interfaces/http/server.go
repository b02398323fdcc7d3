package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/chartpulse/internal/cache"
	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/infrastructure/db"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// ctxKey scopes context values set by middleware.
type ctxKey string

const requestIDKey ctxKey = "request_id"

// handlerTimeout bounds the JSON endpoints. The websocket and metrics routes
// are exempt.
const handlerTimeout = 10 * time.Second

// generateTimeout bounds POST /reports/generate. A cold request chains the
// provider fetch, chart render, and LLM call.
const generateTimeout = 5 * time.Minute

// Server is the local operator HTTP surface: health, report generation,
// cache controls, telemetry, Prometheus metrics, and the live telemetry
// websocket.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	metrics  *MetricsRegistry
	cfg      config.OperatorConfig
}

// NewServer builds the operator server and verifies the port is free. The
// metrics registry is installed as the telemetry sink's observer. generator
// may be nil; POST /reports/generate then answers 503.
func NewServer(cfg config.OperatorConfig, store *cache.TieredCache, sink *telemetry.Sink, generator ReportGenerator, dbm *db.Manager) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	metrics := NewMetricsRegistry()
	sink.SetObserver(metrics)

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewHandlers(store, sink, generator, dbm),
		metrics:  metrics,
		cfg:      cfg,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	// Long-lived and non-JSON routes stay outside the timeout chain. Report
	// generation carries its own deadline.
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/ws/telemetry", s.handlers.TelemetryWS).Methods("GET")
	s.router.HandleFunc("/telemetry/report", s.handlers.TelemetryReport).Methods("GET")
	s.router.Handle("/reports/generate",
		http.TimeoutHandler(http.HandlerFunc(s.handlers.GenerateReport), generateTimeout,
			`{"error":"Service Unavailable","code":"report_generation_timeout"}`)).Methods("POST")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods("GET")
	api.HandleFunc("/cache/stats", s.handlers.CacheStats).Methods("GET")
	api.HandleFunc("/cache/clear-expired", s.handlers.CacheClearExpired).Methods("POST")
	api.HandleFunc("/cache/clear", s.handlers.CacheClear).Methods("POST")
	api.HandleFunc("/telemetry/stats", s.handlers.TelemetryStats).Methods("GET")
	api.HandleFunc("/telemetry/reset", s.handlers.TelemetryReset).Methods("POST")
	api.HandleFunc("/reports", s.handlers.Reports).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// requestIDMiddleware tags each request with a short id, echoed in the
// X-Request-ID header.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID, _ := r.Context().Value(requestIDKey).(string)

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

// timeoutMiddleware enforces the JSON endpoint deadline.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware allows browser tooling served from localhost.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets the JSON content type for API responses.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.Address()).Msg("starting operator http server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down operator http server")
	return s.server.Shutdown(ctx)
}

// Address returns the bind address.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Router exposes the route tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// responseWrapper captures status codes for logging and passes hijacking
// through for websocket upgrades.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
