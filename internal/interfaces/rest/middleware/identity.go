package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const actorIDKey ctxKey = "actorID"

// ActorIDHeader carries the caller identity attached by the upstream
// gateway. This service trusts the edge to have authenticated the caller.
const ActorIDHeader = "X-Actor-ID"

// Identity copies the upstream caller id into the request context.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := r.Header.Get(ActorIDHeader); actor != "" {
				r = r.WithContext(context.WithValue(r.Context(), actorIDKey, actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorID returns the caller id attached by Identity, or "" if absent.
func ActorID(ctx context.Context) string {
	actor, _ := ctx.Value(actorIDKey).(string)
	return actor
}
