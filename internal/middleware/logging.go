package middleware

import (
	"net/http"
	"strings"
	"time"

	"animalcensus/internal/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger logs API requests. Scrapes and websocket upgrades are not logged.
func RequestLogger(logger *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			logger.Warning("%s %s -> %d (%v)", r.Method, r.URL.RequestURI(), rec.status, time.Since(start))
			return
		}
		logger.Info("%s %s -> %d (%v)", r.Method, r.URL.RequestURI(), rec.status, time.Since(start))
	})
}
