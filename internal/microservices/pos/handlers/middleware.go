package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/auth"
)

// requestLogger puts a request-scoped logger into the context and logs
// one line per request.
func requestLogger(lg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl := lg.WithRequestID(middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(logger.IntoContext(r.Context(), rl)))

			rl.Debug("request_handled", map[string]any{
				"method": r.Method, "path": r.URL.Path, "status": ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}

func authenticate(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(header[len("Bearer "):]))
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.IntoContext(r.Context(), claims)))
		})
	}
}

func requireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.FromContext(r.Context())
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
				return
			}
			for _, role := range allowed {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeProblem(w, http.StatusForbidden, "forbidden", "insufficient permissions", nil)
		})
	}
}

// actor is the staff id recorded on every change.
func actor(r *http.Request) string {
	if c, ok := auth.FromContext(r.Context()); ok {
		return c.StaffID
	}
	return "anonymous"
}

// idempotencyScope keeps keys apart per staff member and route.
func idempotencyScope(r *http.Request, key string) string {
	return "idem:" + actor(r) + ":" + r.Method + ":" + r.URL.Path + ":" + key
}
