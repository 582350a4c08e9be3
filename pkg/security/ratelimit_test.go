package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/internal/tests"
)

func setupLimiter(t *testing.T, now time.Time) (*MemoryWindowStore, *RateLimiter) {
	cfg := tests.GetConfig()
	l := tests.GetTestLogger(cfg)
	store := NewMemoryWindowStore(time.Hour)
	t.Cleanup(store.Stop)

	limiter := NewRateLimiter([]Rule{
		{Prefix: AdminPathPrefix, Limit: 2, Window: time.Minute},
		{Prefix: CronPathPrefix, Limit: 1, Window: time.Minute},
	}, Rule{Prefix: "/", Limit: 3, Window: 30 * time.Second}, store, nil, metrics.NewNoopMetricsSink(), l)
	limiter.now = func() time.Time { return now }
	return store, limiter
}

func Test_RateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 15, 0, time.UTC)

	t.Run("Denies past the limit until the window resets", func(t *testing.T) {
		_, limiter := setupLimiter(t, base)

		for i := 0; i < 2; i++ {
			d, err := limiter.Allow(ctx, "1.2.3.4", "/api/admin/sync-staking")
			assert.Nil(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 1-i, d.Remaining)
		}
		d, err := limiter.Allow(ctx, "1.2.3.4", "/api/admin/sync-staking")
		assert.Nil(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.Equal(t, 45*time.Second, d.RetryAfter)
		assert.True(t, d.ResetAt.Equal(time.Date(2025, 5, 1, 10, 1, 0, 0, time.UTC)))

		limiter.now = func() time.Time { return base.Add(time.Minute) }
		d, err = limiter.Allow(ctx, "1.2.3.4", "/api/admin/sync-staking")
		assert.Nil(t, err)
		assert.True(t, d.Allowed)
	})
	t.Run("Counts callers and rules separately", func(t *testing.T) {
		_, limiter := setupLimiter(t, base)

		d, _ := limiter.Allow(ctx, "1.2.3.4", "/api/cron/sync-staking")
		assert.True(t, d.Allowed)
		d, _ = limiter.Allow(ctx, "1.2.3.4", "/api/cron/sync-staking")
		assert.False(t, d.Allowed)

		d, _ = limiter.Allow(ctx, "5.6.7.8", "/api/cron/sync-staking")
		assert.True(t, d.Allowed)
		d, _ = limiter.Allow(ctx, "1.2.3.4", "/api/admin/sync-staking")
		assert.True(t, d.Allowed)
		d, _ = limiter.Allow(ctx, "1.2.3.4", "/api/health")
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
	})
}

func Test_RateLimiter_Wrap(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 15, 0, time.UTC)
	_, limiter := setupLimiter(t, base)

	calls := 0
	handler := limiter.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/cron/sync-staking", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := send()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "45", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), `"success":false`)
	assert.Equal(t, 1, calls)
}

func Test_MemoryWindowStore(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Purges expired windows", func(t *testing.T) {
		store := NewMemoryWindowStore(time.Hour)
		defer store.Stop()
		store.now = func() time.Time { return base }

		ctx := context.Background()
		_, _ = store.Increment(ctx, "a", base.Add(time.Minute))
		_, _ = store.Increment(ctx, "b", base.Add(time.Hour))
		count, _ := store.Increment(ctx, "a", base.Add(time.Minute))
		assert.Equal(t, 2, count)
		assert.Equal(t, 2, store.Len())

		store.now = func() time.Time { return base.Add(2 * time.Minute) }
		assert.Equal(t, 1, store.purgeExpired())
		assert.Equal(t, 1, store.Len())
	})
	t.Run("Stop is idempotent", func(t *testing.T) {
		store := NewMemoryWindowStore(10 * time.Millisecond)
		store.Stop()
		store.Stop()
	})
}

func Test_ClientIPResolver(t *testing.T) {
	newRequest := func(remote string, headers map[string]string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req
	}

	t.Run("Ignores forwarding headers from untrusted peers", func(t *testing.T) {
		resolver, err := NewClientIPResolver(nil)
		assert.Nil(t, err)

		req := newRequest("203.0.113.9:41234", map[string]string{
			"X-Forwarded-For": "8.8.8.8",
			"X-Real-IP":       "10.1.1.1",
		})
		assert.Equal(t, "203.0.113.9", resolver.ClientIP(req))
	})
	t.Run("Honors forwarding headers from trusted proxies", func(t *testing.T) {
		resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", "192.168.1.5"})
		assert.Nil(t, err)

		req := newRequest("192.168.1.5:41234", nil)
		assert.Equal(t, "192.168.1.5", resolver.ClientIP(req))

		req = newRequest("192.168.1.5:41234", map[string]string{"X-Real-IP": "198.51.100.7"})
		assert.Equal(t, "198.51.100.7", resolver.ClientIP(req))

		// the left-most hops are client supplied; the right-most untrusted hop is the caller
		req = newRequest("10.0.0.2:41234", map[string]string{"X-Forwarded-For": "1.1.1.1, 198.51.100.7, 10.0.0.3"})
		assert.Equal(t, "198.51.100.7", resolver.ClientIP(req))

		req = newRequest("10.0.0.2:41234", map[string]string{"X-Forwarded-For": "10.0.0.9, 10.0.0.3"})
		assert.Equal(t, "10.0.0.9", resolver.ClientIP(req))
	})
	t.Run("Rejects malformed proxies", func(t *testing.T) {
		_, err := NewClientIPResolver([]string{"not-an-ip"})
		assert.NotNil(t, err)
		_, err = NewClientIPResolver([]string{"10.0.0.0/99"})
		assert.NotNil(t, err)
	})
}

func Test_RateLimiter_RotatedForwardedFor(t *testing.T) {
	_, limiter := setupLimiter(t, time.Date(2025, 5, 1, 10, 0, 15, 0, time.UTC))
	handler := limiter.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, hop := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/sync-staking", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", hop)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
