package server

import (
	"crypto/subtle"
	"net/http"
)

// unauthorizedMessage is the exact error body clients key on.
const unauthorizedMessage = "Unauthorized: Invalid or missing API key"

// requireAPIKey guards every route except the health probe. The comparison is
// constant time so response latency does not leak key prefixes.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, unauthorizedMessage, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
