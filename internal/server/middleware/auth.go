package middleware

import (
	"log/slog"
	"net/http"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/auth"
)

// NewAuthMiddleware resolves the connecting client's identity before the
// upgrade. Failures are not rejected here with an HTTP status: the upgrade
// handler accepts the socket and closes it with a policy-violation status so
// the client sees a proper close frame.
func NewAuthMiddleware(logger *slog.Logger, verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			credential := auth.CredentialFromRequest(r)
			identity, err := verifier.Verify(credential)
			if err != nil {
				logger.Warn("Credential verification failed",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				reqMeta.AuthErr = err
				next.ServeHTTP(w, r)
				return
			}

			reqMeta.Identity = identity
			next.ServeHTTP(w, r)
		})
	}
}
