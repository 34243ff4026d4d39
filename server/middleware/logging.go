package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/podflow/logger"
)

// probePaths are not logged.
var probePaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/alive":   true,
	"/metrics": true,
}

// RequestLogger logs every request with method, path, status and duration.
// Probe endpoints are skipped. Event streams log once when they close.
func RequestLogger(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := logger.MergeWithDuration(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": sw.status,
			}, time.Since(start))
			if id := r.Header.Get(RequestIDHeader); id != "" {
				fields[logger.FieldRequestID] = id
			}
			if strings.HasPrefix(sw.Header().Get("Content-Type"), "text/event-stream") {
				fields["stream"] = true
			}
			logByStatus(log, fields, sw.status)
		})
	}
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Debug("request completed", fields)
	}
}
