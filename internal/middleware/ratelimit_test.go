package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           burst,
		CleanupInterval: time.Hour,
	})
	return rl
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/send-code", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, 3)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.1:1234"))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Result().StatusCode, http.StatusOK)
		}
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := newTestRateLimiter(t, 2)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("203.0.113.1:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.1:5678"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Category != "rate_limit" || body.RetryAfterSeconds != 60 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestRateLimiter_IndependentPerClientIP(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("203.0.113.1:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.2:1"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("other client status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	rl.allow("203.0.113.1")
	rl.allow("203.0.113.2")

	// 最終アクセスからCleanupIntervalの2倍以内は残る
	rl.cleanup(time.Now().Add(90 * time.Minute))
	if rl.LimiterCount() != 2 {
		t.Fatalf("LimiterCount = %d, want 2", rl.LimiterCount())
	}

	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount = %d, want 0", rl.LimiterCount())
	}
}

// ゴルーチンを使わず、CleanupIntervalが経過した後のリクエストで古いエントリが消えることを検証
func TestRateLimiter_SweepsIdleEntriesOnRequest(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	rl.allow("203.0.113.1")
	rl.allow("203.0.113.2")

	// 間隔未満では掃除しない
	clock = clock.Add(30 * time.Minute)
	rl.allow("203.0.113.3")
	if rl.LimiterCount() != 3 {
		t.Fatalf("LimiterCount = %d, want 3", rl.LimiterCount())
	}

	// 1と2は最終アクセスから2時間15分、3は1時間45分
	clock = clock.Add(105 * time.Minute)
	rl.allow("203.0.113.4")
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2 (idle entries swept)", rl.LimiterCount())
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.Burst != 5 {
		t.Errorf("Burst = %d, want 5", cfg.Burst)
	}
	if got := float64(cfg.Rate) * 60; got < 4.99 || got > 5.01 {
		t.Errorf("Rate = %v req/min, want 5", got)
	}
}
