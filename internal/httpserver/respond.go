package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mailgate/internal/apperr"
	"mailgate/internal/metrics"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	URL       string   `json:"url"`
	Method    string   `json:"method"`
	Status    int      `json:"status"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Code      int      `json:"error_code"`
	Error     string   `json:"error"`
	Kind      string   `json:"kind"`
	Errors    []string `json:"errors,omitempty"`
}

// Responder is the single place failures are turned into responses.
type Responder struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewResponder(logger *slog.Logger, m *metrics.Metrics) *Responder {
	return &Responder{logger: logger, metrics: m, now: time.Now}
}

func (rs *Responder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	d := e.Kind.Describe()

	body := ErrorResponse{
		URL:       r.URL.Path,
		Method:    r.Method,
		Status:    d.Status,
		Message:   d.Message,
		Timestamp: rs.now().UTC().Format(time.RFC3339),
		Code:      d.Code,
		Error:     d.Name,
		Kind:      string(d.Class),
	}
	if d.Class == apperr.ClassValidation {
		body.Errors = e.Violations
	}

	rs.log(r, e, d)
	rs.metrics.ObserveErrorResponse(d.Name, d.Status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(body)
}

func (rs *Responder) log(r *http.Request, e *apperr.Error, d apperr.Descriptor) {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", d.Status,
		"error", d.Name,
		"err", e,
	}
	switch {
	case d.Status >= http.StatusInternalServerError:
		rs.logger.ErrorContext(r.Context(), "request failed", attrs...)
	case e.Kind == apperr.KindTokenSignatureInvalid:
		rs.logger.WarnContext(r.Context(), "token signature rejected, possible forgery", append(attrs, "remote", r.RemoteAddr)...)
	default:
		rs.logger.InfoContext(r.Context(), "request rejected", attrs...)
	}
}

// HandlerFunc is a handler that reports failure by returning it.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts h so a returned error reaches WriteError exactly once.
// Errors after the response has started are only logged.
func (rs *Responder) Handle(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		if err := h(tw, r); err != nil {
			if tw.wroteHeader {
				rs.logger.ErrorContext(r.Context(), "error after response started", "path", r.URL.Path, "err", err)
				return
			}
			rs.WriteError(w, r, err)
		}
	})
}

// Recover turns a panic into an internal error response.
func (rs *Responder) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				rs.logger.ErrorContext(r.Context(), "panic in handler", "path", r.URL.Path, "panic", v)
				if !tw.wroteHeader {
					rs.WriteError(w, r, apperr.Newf(apperr.KindInternal, "panic"))
				}
			}
		}()
		next.ServeHTTP(tw, r)
	})
}

type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
	status      int
}

func (t *trackingWriter) WriteHeader(status int) {
	if !t.wroteHeader {
		t.wroteHeader = true
		t.status = status
	}
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.wroteHeader = true
		t.status = http.StatusOK
	}
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Unwrap() http.ResponseWriter { return t.ResponseWriter }
