package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/sheetusers/internal/auth"
	"github.com/JonMunkholm/sheetusers/internal/logging"
)

// RequireBearer verifies the Authorization bearer token with issuer and
// stores its claims in the request context.
//
// When required is false a request without a token passes through, but a
// token that is present must still be valid.
func RequireBearer(issuer *auth.Issuer, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" && !required {
				next.ServeHTTP(w, r)
				return
			}

			log := logging.FromContext(r.Context())
			token, ok := auth.BearerToken(header)
			if !ok {
				log.Warnw("auth: missing token", "path", r.URL.Path, "method", r.Method, "ip", ClientIP(r))
				unauthorized(w, "missing token")
				return
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				log.Warnw("auth: invalid token", "path", r.URL.Path, "method", r.Method, "ip", ClientIP(r), "error", err)
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   reason,
		"message": "Authentication required",
		"action":  "Log in again to obtain a new token",
		"code":    "AUTH001",
	})
}
