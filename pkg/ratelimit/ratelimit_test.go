package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fordlabs/retroquest-notifier/pkg/apiresponses"
	"github.com/fordlabs/retroquest-notifier/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(10)
	assert.InDelta(t, 10.0/60, cfg.Rate, 1e-9)
	assert.Equal(t, 10, cfg.Burst)

	cfg = PerMinute(0.5)
	assert.Equal(t, 1, cfg.Burst)
}

func TestNew(t *testing.T) {
	t.Run("creates limiter with config", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 20, CleanupInterval: time.Second, MaxAge: time.Minute})
		defer rl.Stop()

		assert.Equal(t, float64(10), rl.Config().Rate)
		assert.Equal(t, 20, rl.Config().Burst)
	})

	t.Run("applies defaults", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 20})
		defer rl.Stop()

		assert.Equal(t, time.Minute, rl.Config().CleanupInterval)
		assert.Equal(t, 5*time.Minute, rl.Config().MaxAge)
	})
}

func TestAllow(t *testing.T) {
	t.Run("allows requests within burst limit then blocks", func(t *testing.T) {
		rl := New(Config{Rate: 0.001, Burst: 3, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed", i)
		}
		assert.False(t, rl.Allow("192.168.1.1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := New(Config{Rate: 0.001, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.True(t, rl.Allow("email:jane@example.com"))
		assert.False(t, rl.Allow("email:jane@example.com"))
		assert.True(t, rl.Allow("email:john@example.com"))
		assert.Equal(t, 2, rl.Len())
	})
}

func newRouter(rl *Limiter, route string) *gin.Engine {
	router := gin.New()
	router.Use(rl.Middleware(route))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return router
}

func doGet(router http.Handler, remote, forwarded string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Run("returns 429 with error envelope when rate limited", func(t *testing.T) {
		rl := New(Config{Rate: 0.001, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		router := newRouter(rl, "test-429")

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, doGet(router, "192.168.1.1:12345", "").Code)
		}

		w := doGet(router, "192.168.1.1:12345", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		var resp apiresponses.APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, apiresponses.CodeTooManyRequests, resp.Code)
		assert.Contains(t, resp.Error, "Rate limit exceeded")
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("test-429")))

		// other clients are unaffected
		assert.Equal(t, http.StatusOK, doGet(router, "192.168.1.2:12345", "").Code)
	})

	t.Run("uses X-Forwarded-For from trusted proxies", func(t *testing.T) {
		rl := New(Config{Rate: 0.001, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		router := gin.New()
		require.NoError(t, router.SetTrustedProxies([]string{"10.0.0.0/8"}))
		router.Use(rl.Middleware("test-xff"))
		router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

		assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.1:12345", "192.168.1.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, doGet(router, "10.0.0.1:12345", "192.168.1.1").Code)
		assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.1:12345", "192.168.1.2").Code)
	})
}

func TestCleanupStaleEntries(t *testing.T) {
	rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: time.Hour, MaxAge: time.Minute})
	defer rl.Stop()

	rl.Allow("old")
	rl.Allow("fresh")
	rl.mu.Lock()
	rl.entries["old"].lastAccess = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	rl.cleanupStaleEntries(time.Now())
	assert.Equal(t, 1, rl.Len())
	_, ok := rl.entries["fresh"]
	assert.True(t, ok)
}

func TestCleanupLoop(t *testing.T) {
	rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: 20 * time.Millisecond, MaxAge: 10 * time.Millisecond})
	defer rl.Stop()

	rl.Allow("192.168.1.1")
	assert.Eventually(t, func() bool { return rl.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 1})
	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}

func TestConcurrency(t *testing.T) {
	rl := New(Config{Rate: 100, Burst: 100, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ip := fmt.Sprintf("192.168.1.%d", id%10)
			for j := 0; j < 10; j++ {
				rl.Allow(ip)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, rl.Len())
}

func BenchmarkAllow(b *testing.B) {
	rl := New(Config{Rate: 1e6, Burst: 1e6, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Allow("192.168.1.1")
	}
}
