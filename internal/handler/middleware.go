package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

const adminTokenHeader = "x-admin-token"

// RequireAdmin guards admin routes with a shared token. The comparison is
// constant-time and the 401 is identical for a missing and a wrong token, so
// the response carries no oracle about the configured secret.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				log.Error().Msg("handler: admin token is not configured")
				respondWithError(w, http.StatusInternalServerError, "service is misconfigured")
				return
			}

			got := r.Header.Get(adminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
