// Package middleware provides HTTP middleware for the AgriWise API.
package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the dashboard origin(s) in frontendURL, a comma-separated list.
// "*" allows any origin but never with credentials.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	allowedOrigins := splitOrigins(frontendURL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed, explicit := false, false
			for _, o := range allowedOrigins {
				if o == origin {
					allowed, explicit = true, true
					break
				}
				if o == "*" {
					allowed = true
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.Header().Add("Vary", "Origin")
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AllowOrigin reports whether an origin is listed in frontendURL, using the
// same rules as CORS. The WebSocket handshake checks it.
func AllowOrigin(frontendURL string) func(origin string) bool {
	allowedOrigins := splitOrigins(frontendURL)
	return func(origin string) bool {
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func splitOrigins(frontendURL string) []string {
	var origins []string
	for _, o := range strings.Split(frontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
