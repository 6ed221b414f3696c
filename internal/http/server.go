// Package http exposes the invoice ledger as a JSON API. Handlers translate
// requests onto the service contracts and map sentinel errors to status
// codes; no business rule lives here.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"fatture/internal/aggregate"
	"fatture/internal/auth"
	"fatture/internal/backend"
	"fatture/internal/export"
	"fatture/internal/ledger"
	applog "fatture/internal/log"
	"fatture/internal/middleware/ratelimit"
	"fatture/internal/middleware/security"
	"fatture/internal/middleware/trace"
	"fatture/internal/registry"
)

// Config tunes the server middleware.
type Config struct {
	Addr              string
	RequestsPerSecond float64
	Burst             int
}

type Server struct {
	http.Server

	auth       *auth.Service
	registries *registry.Service
	invoices   *ledger.Service
	reports    *aggregate.Engine
	exporter   *export.Exporter
	pinger     backend.Pinger

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	headers  *security.HeadersMiddleware
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and the middleware chain, returning a
// ready-to-run server.
func NewServer(cfg Config, authSvc *auth.Service, registries *registry.Service, invoices *ledger.Service, reports *aggregate.Engine, exporter *export.Exporter, pinger backend.Pinger) *Server {
	detector := security.NewDetector()

	s := &Server{
		auth:       authSvc,
		registries: registries,
		invoices:   invoices,
		reports:    reports,
		exporter:   exporter,
		pinger:     pinger,
		detector:   detector,
		tracer:     trace.NewMiddleware(detector.ExtractClientIP),
		headers:    security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/token", s.handleToken)
	mux.Handle("GET /me", s.requireAuth(s.handleMe))
	mux.Handle("PUT /me/password", s.requireAuth(s.handleChangePassword))
	mux.Handle("DELETE /me", s.requireAuth(s.handleDeactivate))

	mux.Handle("GET /api/v1/registries/{kind}", s.requireAuth(s.handleRegistryList))
	mux.Handle("POST /api/v1/registries/{kind}", s.requireAuth(s.handleRegistryCreate))
	mux.Handle("GET /api/v1/registries/{kind}/{id}", s.requireAuth(s.handleRegistryGet))
	mux.Handle("PUT /api/v1/registries/{kind}/{id}", s.requireAuth(s.handleRegistryRename))
	mux.Handle("DELETE /api/v1/registries/{kind}/{id}", s.requireAuth(s.handleRegistryDelete))

	mux.Handle("POST /api/v1/invoices", s.requireAuth(s.handleInvoiceAdd))
	mux.Handle("GET /api/v1/invoices", s.requireAuth(s.handleInvoiceList))
	mux.Handle("GET /api/v1/invoices/{id}", s.requireAuth(s.handleInvoiceGet))
	mux.Handle("PUT /api/v1/invoices/{id}", s.requireAuth(s.handleInvoiceUpdate))
	mux.Handle("DELETE /api/v1/invoices/{id}", s.requireAuth(s.handleInvoiceDelete))

	mux.Handle("GET /api/v1/reports/cost-centers", s.requireAuth(s.handleReport))
	mux.Handle("GET /api/v1/reports/cost-centers/export", s.requireAuth(s.handleReportExport))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	httpLogger := applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.Default().Handler(),
	})

	handler := s.headers.Middleware(mux)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, nil)(handler)
	handler = s.detectionMiddleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(httpLogger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}
	return s
}

// detectionMiddleware flags probe traffic for the metrics endpoint. It never
// blocks a request.
func (s *Server) detectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			fields := applog.NewFields().
				WithClientIP(s.detector.ExtractClientIP(r)).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery,
					r.Header.Get("User-Agent"), r.Header.Get("Referer"))
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request", fields.ToSlice()...)
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the HTTP server and the rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady probes the storage backend; a failing ping means the server
// should not receive traffic yet.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "Readiness probe failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("storage unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "http_requests_total %d\n", traceMetrics.TotalRequests)
	fmt.Fprintf(w, "http_last_response_time_us %d\n", traceMetrics.AverageResponseTime)
	fmt.Fprintf(w, "ratelimit_hits_total %d\n", limitMetrics.LimitHits)
	fmt.Fprintf(w, "ratelimit_tracked_clients %d\n", limitMetrics.ClientCount)
	fmt.Fprintf(w, "security_suspicious_requests_total %d\n", securityMetrics.SuspiciousRequests)
}

// writeJSON encodes v with the given status. Encoding failures are logged,
// not surfaced; the status line is already gone.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
