package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/ratelimit"
)

func newLimitedHandler(t *testing.T, max int64) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := ratelimit.NewStore(client)
	require.NoError(t, err)
	handler := ratelimit.New(store, limiter.Rate{Period: time.Minute, Limit: max})
	return handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddlewareAllowsWithinBudget(t *testing.T) {
	h := newLimitedHandler(t, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestMiddlewareRejectsOverBudget(t *testing.T) {
	h := newLimitedHandler(t, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		h.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil))
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
}
