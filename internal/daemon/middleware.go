package daemon

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"anibridge-plex/internal/logging"
)

const traceIDHeader = "X-Trace-ID"

func withTraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (d *Daemon) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &responseWriter{ResponseWriter: w}

		next.ServeHTTP(lw, r)

		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		logging.WithContext(r.Context(), d.logger).Debug("http request",
			logging.String("method", r.Method),
			logging.String("uri", redactedURI(r)),
			logging.Int("status", status),
			logging.Int("size", lw.size),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

// redactedURI is the request path and query with the webhook secret masked.
func redactedURI(r *http.Request) string {
	query := r.URL.Query()
	if len(query) == 0 {
		return r.URL.Path
	}
	if query.Has("secret") {
		query.Set("secret", "REDACTED")
	}
	return (&url.URL{Path: r.URL.Path, RawQuery: query.Encode()}).RequestURI()
}
