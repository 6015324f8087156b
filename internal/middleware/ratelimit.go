package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiterConfig はログイン試行のレート制限設定を保持する。
type LoginLimiterConfig struct {
	Rate            rate.Limit    // 1IPあたりのレート（req/sec）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultLoginLimiterConfig はデフォルトのログインレート制限設定を返す。
// 10 req/min/IP。
func DefaultLoginLimiterConfig() LoginLimiterConfig {
	return LoginLimiterConfig{
		Rate:            rate.Limit(10.0 / 60.0),
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// LoginLimiterConfigPerMinute は1分あたりの許容回数から設定を組み立てる。
func LoginLimiterConfigPerMinute(perMinute int) LoginLimiterConfig {
	cfg := DefaultLoginLimiterConfig()
	if perMinute > 0 {
		cfg.Rate = rate.Limit(float64(perMinute) / 60.0)
		cfg.Burst = perMinute
	}
	return cfg
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginLimiter はClientLoginへの試行回数をクライアントIPごとに制限する。
// パスワード総当たりを遅らせる目的で、認証前に適用する。
type LoginLimiter struct {
	config LoginLimiterConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLoginLimiter は新しいLoginLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewLoginLimiter(config LoginLimiterConfig, logger *slog.Logger) *LoginLimiter {
	ll := &LoginLimiter{
		config:   config,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go ll.cleanupLoop()

	return ll
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (ll *LoginLimiter) Stop() {
	ll.stopOnce.Do(func() { close(ll.stopCh) })
}

// Middleware はログイン試行のレート制限ミドルウェアを返す。
func (ll *LoginLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !ll.allow(ip) {
				ll.logger.Warn("rate limit exceeded",
					slog.String("event", "auth_failure"),
					slog.String("remote_ip", ip),
					slog.String("limit_type", "client_login"),
				)
				writeRateLimitResponse(w, ll.config.Rate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (ll *LoginLimiter) LimiterCount() int {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return len(ll.limiters)
}

func (ll *LoginLimiter) allow(key string) bool {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	cl, ok := ll.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(ll.config.Rate, ll.config.Burst)}
		ll.limiters[key] = cl
	}
	cl.lastAccess = time.Now()

	return cl.limiter.Allow()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (ll *LoginLimiter) cleanupLoop() {
	ticker := time.NewTicker(ll.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ll.cleanup()
		case <-ll.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (ll *LoginLimiter) cleanup() {
	ttl := ll.config.CleanupInterval * 2
	now := time.Now()

	ll.mu.Lock()
	for key, cl := range ll.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(ll.limiters, key)
		}
	}
	ll.mu.Unlock()
}

// clientIP はRemoteAddrからポートを除いたIPを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte("Too Many Requests!"))
}
