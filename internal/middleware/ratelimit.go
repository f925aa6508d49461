package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/thefn/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Rate            rate.Limit    // クライアントIPごとのレート（req/sec）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 使われなくなったエントリを掃除する間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 確認コードの送信・照合は1クライアントIPあたり5 req/min。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            rate.Limit(5.0 / 60.0),
		Burst:           5,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのトークンバケットによるレート制限を管理する。
// プロセス内のみで保持し、複数インスタンス間では共有しない。
// 古いエントリはリクエスト処理中にCleanupIntervalごとにまとめて削除する。
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config:    config,
		now:       time.Now,
		limiters:  make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

// Middleware はクライアントIPごとのレート制限ミドルウェアを返す。
// IPが判別できないリクエストは1つのバケットを共有する。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			if !rl.allow(key) {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", key),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusTooManyRequests, rl.rejection())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	if rl.config.CleanupInterval > 0 && now.Sub(rl.lastSweep) >= rl.config.CleanupInterval {
		rl.sweepLocked(now)
	}
	cl, exists := rl.limiters[key]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.config.Rate, rl.config.Burst)}
		rl.limiters[key] = cl
	}
	cl.lastAccess = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// rejection は429レスポンス用のエラーを返す。
// Retry-Afterは1トークンが補充されるまでの秒数。
func (rl *RateLimiter) rejection() *model.APIError {
	retryAfterSec := 1
	if rl.config.Rate > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(rl.config.Rate)))
		if retryAfterSec < 1 {
			retryAfterSec = 1
		}
	}
	return &model.APIError{
		Code:              model.ErrCodeRateLimited,
		Message:           "Too many requests. Please try again later.",
		Category:          "rate_limit",
		Action:            "Wait and try again.",
		RetryAfterSeconds: retryAfterSec,
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweepLocked(now)
}

// sweepLocked はrl.muを保持した状態で呼ぶ。
func (rl *RateLimiter) sweepLocked(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
	rl.lastSweep = now
}
