package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/log"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady verifies the record store answers within readyTimeout
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ready",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}
	status := http.StatusOK

	if s.deps.Store == nil {
		resp.Checks["store"] = "not_configured"
		resp.Status, status = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed",
			log.FieldError, err,
			log.FieldComponent, log.ComponentStorage)
		resp.Checks["store"] = "failed"
		resp.Status, status = "not_ready", http.StatusServiceUnavailable
	} else {
		resp.Checks["store"] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleMetrics provides request, security and alert metrics in a
// Prometheus-like text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests rejected by the detector", securityMetrics.BlockedRequests)

	if s.deps.DashboardCache != nil {
		metric("dashboard_cache_entries", "gauge", "Current dashboard cache entries", s.deps.DashboardCache.Size())
	}
	if s.deps.AlertStats != nil {
		processed, failed, alerts := s.deps.AlertStats()
		metric("budget_checks_total", "counter", "Budget checks evaluated", processed)
		metric("budget_checks_failed_total", "counter", "Budget checks that failed", failed)
		metric("budget_alerts_total", "counter", "Budget-exceeded signals emitted", alerts)
	}

	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}
