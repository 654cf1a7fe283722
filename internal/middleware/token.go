// Package middleware provides HTTP middleware for the order bot.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// RequireToken returns middleware that rejects requests without the shared
// bridge token. The token is read from "Authorization: Bearer <token>" or,
// for WebSocket clients that cannot set headers, the "token" query parameter.
// An empty token rejects every request.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if auth := r.Header.Get("Authorization"); auth != "" {
				got = strings.TrimPrefix(auth, "Bearer ")
			}

			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				slog.Warn("Rejected request with invalid token", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
