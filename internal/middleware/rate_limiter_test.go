package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"saulto/internal/auth"
	"saulto/internal/logger"

	"github.com/gin-gonic/gin"
)

func init() {
	_ = logger.Init("debug", "console", "stdout")
}

func TestRateLimiterBurstExhaustion(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 100,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rl.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("tenant:42") {
			t.Fatalf("expected request %d within burst to pass", i+1)
		}
	}
	if rl.Allow("tenant:42") {
		t.Fatal("expected request beyond burst to be rejected")
	}

	// 令牌随时间补充
	now = now.Add(2 * time.Second)
	if !rl.Allow("tenant:42") {
		t.Fatal("expected request after refill to pass")
	}
}

func TestRateLimiterKeysAreIsolated(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 100,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	if !rl.Allow("tenant:1") {
		t.Fatal("expected first request for tenant:1 to pass")
	}
	if rl.Allow("tenant:1") {
		t.Fatal("expected second request for tenant:1 to be rejected")
	}
	if !rl.Allow("tenant:2") {
		t.Fatal("expected tenant:2 to be unaffected by tenant:1 quota")
	}
}

func TestRateLimitByTenantMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(&RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 100,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.UserContextKey, &auth.UserContext{UserID: "user-1", TenantID: 42})
		c.Next()
	})
	r.Use(RateLimitByTenant(rl))
	r.POST("/etl", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/etl", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := do(); code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		if logger.GetTraceID(c.Request.Context()) == "" {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	// 未携带请求 ID：自动生成并回写响应头
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if resp.Header().Get(HeaderRequestID) == "" {
		t.Fatal("expected generated request id in response header")
	}

	// 上游透传的请求 ID 原样保留
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "upstream-id")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if got := resp.Header().Get(HeaderRequestID); got != "upstream-id" {
		t.Fatalf("expected upstream request id to be preserved, got %q", got)
	}
}
