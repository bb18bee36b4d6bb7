// Package middleware holds the HTTP middleware shared by the API router.
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
)

// RequestLogger logs one line per request with status, size and latency.
// Place it after chi's RequestID so the id is attached.
func RequestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	log := logging.Component(logger, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				entry := log.WithFields(logrus.Fields{
					"method":   r.Method,
					"path":     r.URL.Path,
					"status":   status,
					"bytes":    ww.BytesWritten(),
					"duration": time.Since(start).String(),
				})
				if id := chimw.GetReqID(r.Context()); id != "" {
					entry = entry.WithField("request_id", id)
				}
				if status >= http.StatusInternalServerError {
					entry.Warn("request failed")
					return
				}
				entry.Info("request served")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
