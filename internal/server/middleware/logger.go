package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger creates a middleware that logs each incoming upgrade request.
func NewRequestLogger(logger *slog.Logger) Middleware {
	log := logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
			}

			log.Info("Incoming request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)
		})
	}
}
