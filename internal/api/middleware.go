package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pingwatch/pingwatch/internal/pingerr"
	"github.com/pingwatch/pingwatch/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to the single HTTP status pingerr.HTTPStatus assigns
// its kind. This is the only place an error kind becomes a status code.
func writeError(w http.ResponseWriter, err error) {
	mapped := mapStoreErr(err)
	status := pingerr.HTTPStatus(mapped)
	if status >= 500 {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": mapped.Error()})
}

// mapStoreErr translates the store package's plain sentinel errors into
// pingerr kinds so every handler shares one error-to-status mapping.
// Cross-tenant access maps to NotFound, never Forbidden, to avoid
// existence leaks.
func mapStoreErr(err error) error {
	var pe *pingerr.Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return pingerr.NotFound("resource not found")
	case errors.Is(err, store.ErrConflict):
		return pingerr.Conflict("resource conflict")
	default:
		return pingerr.Internal("internal error", err)
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// authMiddleware enforces bearer-token auth. Public routes
// (health, dev-login, telegram webhook) skip it entirely. Every other route
// is opportunistically authenticated: a present, valid bearer token scopes
// the request to its owning user; when AUTH_REQUIRED is set, a missing or
// invalid token is rejected with 401 regardless of method, so reads get the
// same scoping as writes.
func (s *Server) authMiddleware(public bool, next http.HandlerFunc) http.HandlerFunc {
	if public {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			if s.cfg.Auth.Required {
				writeError(w, pingerr.Unauthorized("missing bearer token"))
				return
			}
			next(w, r)
			return
		}

		sess, err := s.stores.AuthSessions.GetByTokenHash(r.Context(), hashToken(token))
		if err != nil || !sess.Valid(time.Now().UTC()) {
			if s.cfg.Auth.Required {
				writeError(w, pingerr.Unauthorized("invalid, expired, or revoked token"))
				return
			}
			next(w, r)
			return
		}

		next(w, r.WithContext(withUserID(r.Context(), sess.UserID)))
	}
}

// tracingMiddleware starts one span per API request.
func (s *Server) tracingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.StartSpan(r.Context(), "http."+r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		next(w, r.WithContext(ctx))
	}
}

// corsMiddleware is permissive for localhost, 127.0.0.1, RFC1918 private
// LAN, and configured tunnel domains;
// exposes the etag header so browser clients can read relay-upload ETags.
func corsMiddleware(tunnelDomains []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, tunnelDomains) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "etag")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, tunnelDomains []string) bool {
	host := origin
	if u := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"); u != "" {
		host = u
	}
	if idx := strings.IndexAny(host, ":/"); idx >= 0 {
		host = host[:idx]
	}
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	for _, d := range tunnelDomains {
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			return true
		}
	}
	return false
}
