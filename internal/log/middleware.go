package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the request-scoped logger, or one built on the slog
// default when the context has none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return bind(slog.Default().Handler(), "")
}

// Middleware puts logger into every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware tags the request-scoped logger with the request ID.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := FromContext(r.Context()).With(FieldRequestID, extractRequestID(r))
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger writes the recurring events of the service with a fixed
// set of fields.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	if logger == nil {
		logger = NewNop()
	}
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	sl.logger.DebugContext(ctx, "HTTP request started",
		FieldMethod, r.Method,
		FieldPath, r.URL.Path,
		FieldQuery, r.URL.RawQuery,
		FieldUserAgent, r.Header.Get("User-Agent"),
		FieldReferer, r.Header.Get("Referer"),
		FieldClientIP, clientIP)
}

// LogHTTPEnd logs at warn for 4xx and error for 5xx answers.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}
	sl.logger.Log(ctx, level, "HTTP request completed",
		FieldMethod, r.Method,
		FieldPath, r.URL.Path,
		FieldStatusCode, statusCode,
		FieldDuration, durationMs,
		FieldSuccess, statusCode < 400,
		FieldClientIP, clientIP)
}

func (sl *StructuredLogger) LogTransactionWritten(ctx context.Context, op, userID, id, typ, category, amount string) {
	sl.logger.InfoContext(ctx, "Transaction saved",
		FieldOperation, op,
		FieldUserID, userID,
		FieldTransactionID, id,
		FieldType, typ,
		FieldCategory, category,
		FieldAmount, amount)
}

func (sl *StructuredLogger) LogBudgetAlert(ctx context.Context, userID string, month, year int, total, budget string) {
	sl.logger.WarnContext(ctx, "Monthly budget exceeded",
		FieldOperation, OpEvaluate,
		FieldUserID, userID,
		FieldMonth, month,
		FieldYear, year,
		FieldTotal, total,
		FieldBudgetAmount, budget)
}
