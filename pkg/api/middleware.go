package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Varshaa-Selva/Languard-ai/pkg/auth"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates or assigns X-Request-ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLog logs one line per request.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", w.Header().Get(headerRequestID),
			)
		})
	}
}

// RateLimit rejects clients over policy with 429. Clients are keyed by
// principal when authenticated, otherwise by remote IP. A store failure lets
// the request through.
func RateLimit(store LimiterStore, policy LimitPolicy, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if p, err := auth.GetPrincipal(r.Context()); err == nil {
				key = "sub:" + p.ID
			}
			allowed, err := store.Allow(r.Context(), key, policy)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				allowed = true
			}
			if !allowed {
				WriteTooManyRequests(w, retryAfter(policy))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(p LimitPolicy) int {
	if p.RPS <= 0 || p.RPS >= 1 {
		return 1
	}
	return int(1/p.RPS + 0.5)
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}

// Authenticate validates bearer tokens. With required set, requests without
// a valid token are rejected; otherwise they proceed anonymously.
func Authenticate(v *auth.JWTValidator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				if required {
					WriteUnauthorized(w, "")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Validate(token)
			if err != nil {
				WriteUnauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// requireRole gates a handler on a principal role. It is a no-op when the
// server runs without authentication.
func (s *Server) requireRole(role string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jwt == nil {
			h(w, r)
			return
		}
		p, err := auth.GetPrincipal(r.Context())
		if err != nil {
			WriteUnauthorized(w, "")
			return
		}
		if !p.HasRole(role) {
			WriteForbidden(w, role+" role required")
			return
		}
		h(w, r)
	}
}
