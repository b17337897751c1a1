package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"restaurant-pos/internal/common/logger"
)

const Header = "Idempotency-Key"

// KeyFunc scopes a client key, typically by actor and route, so two staff
// members reusing a key do not collide.
type KeyFunc func(r *http.Request, key string) string

type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays completed responses for repeated keys on mutating
// requests. Requests without the header pass through. Server errors are
// not stored so the client may retry them.
func Middleware(store Store, scope KeyFunc, lg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if scope != nil {
				key = scope(r, key)
			}
			ctx := r.Context()
			rl := logger.FromContext(ctx, lg)

			stored, err := store.Reserve(ctx, key)
			switch {
			case errors.Is(err, ErrInFlight):
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"type":"idempotency_in_flight","title":"Conflict","status":409,"detail":"request with this idempotency key is in progress"}` + "\n"))
				return
			case err != nil:
				rl.Error("idempotency_reserve_failed", err, map[string]any{"key": key})
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				rl.Info("idempotent_replay", map[string]any{"key": key, "status": stored.Status})
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			// The client may hang up before the handler finishes; the key must
			// still be settled or every retry would see it in flight.
			wctx := context.WithoutCancel(ctx)
			settled := false
			defer func() {
				if settled {
					return
				}
				if err := store.Release(wctx, key); err != nil {
					rl.Error("idempotency_release_failed", err, map[string]any{"key": key})
				}
			}()

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			if rec.status >= http.StatusInternalServerError {
				return
			}
			resp := Response{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.buf.Bytes()}
			if err := store.Complete(wctx, key, resp); err != nil {
				rl.Error("idempotency_store_failed", err, map[string]any{"key": key})
				return
			}
			settled = true
		})
	}
}
