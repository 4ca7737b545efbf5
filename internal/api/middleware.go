package api

import (
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

// responseWriter captures status and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// requestLog logs each request. Runs after chimw.RequestID.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrap, r)
		h.log().Debug("request",
			logger.Field{Key: "request_id", Value: chimw.GetReqID(r.Context())},
			logger.Field{Key: "method", Value: r.Method},
			logger.Field{Key: "path", Value: r.URL.Path},
			logger.Field{Key: "status", Value: wrap.status},
			logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
			logger.Field{Key: "size", Value: wrap.size})
	})
}

// recoverer turns a handler panic into a 500 JSON response.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log().Warn("panic recovered",
					logger.Field{Key: "request_id", Value: chimw.GetReqID(r.Context())},
					logger.Field{Key: "method", Value: r.Method},
					logger.Field{Key: "path", Value: r.URL.Path},
					logger.Field{Key: "panic", Value: rec},
					logger.Field{Key: "stack", Value: string(debug.Stack())})
				JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
