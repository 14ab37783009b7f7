package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("http_request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// logFailure records a rejected request. Server-side faults go to Error.
func (s *Server) logFailure(r *http.Request, event string, status int, code string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("reason", code),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		s.logger.Error(event, fields...)
		return
	}
	s.logger.Info(event, fields...)
}
