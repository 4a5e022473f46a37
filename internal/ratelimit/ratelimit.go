// Package ratelimit enforces a per-client request budget using the ulule
// limiter with its redis store.
package ratelimit

import (
	"net/http"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
)

// NewStore builds the redis-backed limiter store.
func NewStore(client *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "ratelimit"})
}

// Handler wraps requests with a rate limit keyed by client IP. Limiter
// errors fail open so a redis hiccup never takes the API down.
type Handler struct {
	Limiter *limiter.Limiter
	OnError func(error)
}

// New builds a Handler from a store and rate.
func New(store limiter.Store, rate limiter.Rate) Handler {
	return Handler{Limiter: limiter.New(store, rate)}
}

// Middleware implements the chi middleware shape.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Limiter.GetIPKey(r)
		lctx, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		if lctx.Reached {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
