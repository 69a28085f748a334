package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/telemetry-arrival-report/internal/adapter/export"
	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

const (
	minYear = 2000
	maxYear = 2100

	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// ReportService is the application surface exposed over HTTP.
type ReportService interface {
	CheckReadiness(ctx context.Context) error
	MonthlyReport(ctx context.Context, year int, month time.Month) (domain.Report, error)
	Rules(ctx context.Context) (domain.Rules, error)
	UpdateRules(ctx context.Context, raw any) (domain.Rules, error)
	RegenerateRules(ctx context.Context) (domain.Rules, error)
}

// Server exposes the report API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	service    ReportService
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the report API and the
// /healthz, /readyz, and /metrics routes.
func NewServer(addr string, service ReportService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           withRequestID(logger, mux),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		service: service,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(service))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("POST /api/config/regenerate", s.handleRegenerate)
	mux.HandleFunc("GET /api/report/monthly", s.handleMonthlyReport)
	mux.HandleFunc("GET /api/report/monthly/export", s.handleExport)

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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	rules, err := s.service.Rules(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "request body must be a JSON object")
		return
	}

	rules, err := s.service.UpdateRules(r.Context(), payload)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	rules, err := s.service.RegenerateRules(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.monthlyReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	report, ok := s.monthlyReport(w, r)
	if !ok {
		return
	}

	data, err := export.Render(report, format)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(report, format)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client went away
}

// monthlyReport parses year and month from the query and builds the report,
// writing the error response itself when it returns false.
func (s *Server) monthlyReport(w http.ResponseWriter, r *http.Request) (domain.Report, bool) {
	q := r.URL.Query()
	year, err := queryInt(q.Get("year"), "year", minYear, maxYear)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return domain.Report{}, false
	}
	month, err := queryInt(q.Get("month"), "month", 1, 12)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return domain.Report{}, false
	}

	report, err := s.service.MonthlyReport(r.Context(), year, time.Month(month))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return domain.Report{}, false
		}
		s.serverError(w, r, err)
		return domain.Report{}, false
	}
	return report, true
}

func queryInt(raw, name string, lo, hi int) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	requestLogger(s.logger, r).Error("request failed", "path", r.URL.Path, "error", err)
	writeDetail(w, http.StatusInternalServerError, err.Error())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

type requestIDKey struct{}

// withRequestID tags every request with an id, reusing the caller's
// X-Request-ID when present, and logs the completed request.
func withRequestID(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		requestLogger(logger, r).Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return logger.With("request_id", id)
	}
	return logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
