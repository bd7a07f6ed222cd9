package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/not-mt/zapd/logger"
)

// HeaderRequestID carries the caller's correlation id. Inbound values
// are kept so a zap submit can be correlated with later status polls.
const HeaderRequestID = "X-Request-ID"

// corsMiddleware adds CORS headers to HTTP responses using configured
// allowed origins. Same origin validation as WebSocket connections.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// If origin is present and allowed by config, set CORS headers
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// originAllowed checks the origin against server.allowed_origins.
// Prefix matching allows any port number.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// checkOrigin validates WebSocket origins. Requests with no Origin
// header pass (direct WebSocket clients, curl, tests).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.originAllowed(origin)
}

// requestIDMiddleware binds an inbound X-Request-ID (or a fresh uuid)
// into the request context and echoes it on the response.
func (s *Server) requestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next(w, r.WithContext(logger.WithRequestID(r.Context(), requestID)))
	}
}

// throttleMiddleware rejects requests over the configured global rate.
// A nil limiter means server.requests_per_second is unset.
func (s *Server) throttleMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.throttle != nil && !s.throttle.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}
