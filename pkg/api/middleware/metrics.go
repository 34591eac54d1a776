package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder defines the interface for recording HTTP metrics.
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// ContextMetricsRecorder is implemented by recorders that attach trace
// exemplars from the request context.
type ContextMetricsRecorder interface {
	RecordHTTPRequestContext(ctx context.Context, method, path, status string, duration time.Duration)
}

// Metrics returns a middleware that records HTTP metrics. Requests under
// skipPrefix (the metrics endpoint itself) are not recorded.
func Metrics(recorder MetricsRecorder, skipPrefix string) func(http.Handler) http.Handler {
	if skipPrefix == "" {
		skipPrefix = "/metrics"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, skipPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Handle panics to ensure metrics are recorded
			defer func() {
				if err := recover(); err != nil {
					wrapped.statusCode = http.StatusInternalServerError
					record(recorder, r, wrapped.statusCode, time.Since(start))
					panic(err)
				}
			}()

			next.ServeHTTP(wrapped, r)
			record(recorder, r, wrapped.statusCode, time.Since(start))
		})
	}
}

func record(recorder MetricsRecorder, r *http.Request, statusCode int, duration time.Duration) {
	path := routePattern(r)
	if path == r.URL.Path {
		path = normalizePath(path)
	}
	status := strconv.Itoa(statusCode)
	if ctxRecorder, ok := recorder.(ContextMetricsRecorder); ok {
		ctxRecorder.RecordHTTPRequestContext(r.Context(), r.Method, path, status, duration)
		return
	}
	recorder.RecordHTTPRequest(r.Method, path, status, duration)
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes URL paths to reduce cardinality when no route
// pattern is known. Order ids, UUIDs and numeric ids become placeholders.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, "ORD-"):
			parts[i] = "{id}"
		case len(part) == 36 && strings.Count(part, "-") == 4:
			parts[i] = "{id}"
		case part != "":
			if _, err := strconv.Atoi(part); err == nil {
				parts[i] = "{id}"
			}
		}
	}
	return strings.Join(parts, "/")
}
