package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware rejects requests without a valid bearer token. When the
// service is disabled every request is rejected with 404 so the admin
// surface does not exist.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !service.Enabled() {
				http.NotFound(w, r)
				return
			}
			token := BearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}
			op, err := service.ValidateJWT(token)
			if err != nil {
				if logger != nil {
					logger.Warn("jwt validation failed", "error", err, "path", r.URL.Path)
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) string {
	value := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(value) < len("bearer ") || !strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
