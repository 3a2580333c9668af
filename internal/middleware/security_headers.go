package middleware

import (
	"net/http"

	"tidepool-web/internal/security"
)

// SecurityHeaders stamps the fixed security header set on every response.
// Handler responses already carry these; the middleware covers routes that
// bypass them, such as metrics and health.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			security.ApplyHeaders(w.Header())
			next.ServeHTTP(w, r)
		})
	}
}
