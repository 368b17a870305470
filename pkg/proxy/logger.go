package proxy

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zitadel/logging"
)

// logRequests attaches a request-scoped logger carrying a fresh request id
// and logs the outcome of each request.
func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestLogger := logger.With("request_id", uuid.NewString())
			r = r.WithContext(logging.ToContext(r.Context(), requestLogger))

			lw := &loggedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lw, r)

			requestLogger.InfoContext(r.Context(), "request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lw.status,
				"written", lw.written,
				"duration", time.Since(start),
			)
		})
	}
}

type loggedWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *loggedWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggedWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}
