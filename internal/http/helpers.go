package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"

	"github.com/goccy/go-json"
)

const (
	msgServerError      = "Server Error"
	msgNotAuthorized    = "Not authorized"
	msgNotFound         = "Not found"
	msgTxNotFound       = "Transaction not found"
	msgTxRemoved        = "Transaction removed"
	msgRateLimited      = "Too many requests, please try again later"
	msgMethodNotAllowed = "Method not allowed"
)

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"` + msgServerError + `"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// errorStatus maps the error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text a client sees for err. Server faults never
// leak their cause.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return msgServerError
	case http.StatusForbidden:
		return msgNotAuthorized
	case http.StatusNotFound:
		return msgNotFound
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return http.StatusText(status)
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// writeError logs the failure and writes the mapped status. Client errors
// are logged at debug level only.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	logger := log.FromContext(r.Context())
	fields := []any{
		log.FieldError, err,
		log.FieldErrorType, errorType(status),
		log.FieldOperation, op,
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields...)
	}
	writeMessage(w, status, publicMessage(status, err))
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return log.ErrorTypeValidation
	case http.StatusUnauthorized:
		return log.ErrorTypeAuth
	case http.StatusForbidden:
		return log.ErrorTypeForbidden
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusConflict:
		return log.ErrorTypeConflict
	default:
		return log.ErrorTypeInternal
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusNotFound, msgNotFound)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

func (s *Server) handleUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="fintrack"`)
	writeMessage(w, http.StatusUnauthorized, msgNotAuthorized+", "+strings.ToLower(publicMessage(http.StatusUnauthorized, err)))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeMessage(w, http.StatusTooManyRequests, msgRateLimited)
}
