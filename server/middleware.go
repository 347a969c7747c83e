package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(lw, r)

		h.logger.
			WithField("request_id", middleware.GetReqID(r.Context())).
			WithField("uri", r.RequestURI).
			WithField("method", r.Method).
			WithField("status", lw.Status()).
			WithField("size", lw.BytesWritten()).
			WithField("duration", time.Since(start).String()).
			Info("request handled")
	})
}
