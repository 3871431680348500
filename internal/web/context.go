package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetusers/internal/audit"
	mw "github.com/JonMunkholm/sheetusers/internal/web/middleware"
)

// requestMetadata adds client IP and User-Agent to the request context for
// audit entries.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithIP(r.Context(), mw.ClientIP(r))
		ctx = audit.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
