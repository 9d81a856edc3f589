package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Component: ComponentApp,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf).With(FieldRequestID, "req_1").WithComponent(ComponentBudget)

	logger.Info("hello")
	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=budget") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "request_id=req_1") {
		t.Fatalf("lost attributes: %q", out)
	}
	if logger.Component() != ComponentBudget {
		t.Fatalf("Component() = %q", logger.Component())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_42") {
		t.Fatalf("output = %q", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(bufferLogger(&buf))
	r := httptest.NewRequest(http.MethodPost, "/api/budget", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusBadGateway, 12, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, http.StatusNotFound, 3, "10.0.0.1")
	sl.LogBudgetAlert(context.Background(), "u1", 3, 2025, "120.00", "100.00")

	out := buf.String()
	for _, want := range []string{"level=ERROR", "status_code=502", "level=WARN", "success=false", "budget_amount=100.00", "month=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
