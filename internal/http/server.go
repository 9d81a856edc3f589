// Package http exposes the transaction, dashboard, budget and auth
// operations as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"

	"github.com/gorilla/mux"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readyTimeout      = 5 * time.Second
	maxBodyBytes      = 1 << 20
)

type (
	// Pinger reports whether the record store is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Sizer reports the number of cached entries.
	Sizer interface {
		Size() int
	}

	// Deps are the collaborators the handlers call into.
	Deps struct {
		Transactions *services.TransactionService
		Budgets      *services.BudgetService
		Auth         *auth.Service
		Store        Pinger

		// Optional, only read by /metrics.
		DashboardCache Sizer
		AlertStats     func() (processed, failed, alerts int64)
	}

	Options struct {
		CORSOrigins        []string
		RateLimitPerMinute int
		Logger             *log.Logger
	}
)

// Server embeds http.Server and owns the middleware state that needs to be
// released on shutdown.
type Server struct {
	http.Server

	deps     Deps
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	headers  *security.HeadersMiddleware
	cors     func(http.Handler) http.Handler
	now      func() time.Time
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector(logger)
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		deps:     deps,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		cors:     security.CORS(opts.CORSOrigins),
		now:      time.Now,
		started:  time.Now(),
	}
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.Handle("/auth/me", s.protect(s.handleMe)).Methods(http.MethodGet)

	api.Handle("/transactions/dashboard/stats", s.protect(s.handleDashboard)).Methods(http.MethodGet)
	api.Handle("/transactions", s.protect(s.handleListTransactions)).Methods(http.MethodGet)
	api.Handle("/transactions", s.protect(s.handleCreateTransaction)).Methods(http.MethodPost)
	api.Handle("/transactions/{id}", s.protect(s.handleUpdateTransaction)).Methods(http.MethodPut)
	api.Handle("/transactions/{id}", s.protect(s.handleDeleteTransaction)).Methods(http.MethodDelete)

	api.Handle("/budget/current", s.protect(s.handleCurrentBudget)).Methods(http.MethodGet)
	api.Handle("/budget", s.protect(s.handleSetBudget)).Methods(http.MethodPost)
	api.Handle("/budget/history", s.protect(s.handleBudgetHistory)).Methods(http.MethodGet)
	api.Handle("/budget/alerts", s.protect(s.handleBudgetAlerts)).Methods(http.MethodGet)

	// Outermost first. CORS sits outside the router so preflight requests
	// never reach method matching.
	return chain(r,
		s.recoverer,
		s.tracer.Middleware,
		log.Middleware(s.logger),
		log.RequestIDMiddleware(trace.RequestIDFromRequest),
		s.detector.Middleware,
		s.headers.Middleware,
		s.cors,
		s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited),
	)
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// protect wraps h with bearer-token authentication.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.deps.Auth, s.handleUnauthorized)(h)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.ErrorContext(r.Context(), "Panic recovered",
					"panic", rec,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldRequestID, trace.GetRequestID(r.Context()))
				writeMessage(w, http.StatusInternalServerError, msgServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// userID returns the authenticated owner. Only called behind protect.
func userID(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) currentPeriod() (month, year int) {
	return core.MonthYear(s.now())
}
