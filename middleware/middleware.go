package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter 按客户端 IP 做固定窗口限流
type RateLimiter struct {
	limit  int           // 每个 IP 每个窗口允许的最大请求次数，<= 0 表示不限
	window time.Duration // 计数窗口

	mu      sync.Mutex
	count   map[string]int
	resetAt map[string]time.Time
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		count:   make(map[string]int),
		resetAt: make(map[string]time.Time),
		now:     time.Now,
	}
}

// clientIP 取 RemoteAddr 的主机部分，兼容 IPv6
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow 记一次请求，超过阈值返回 false
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.resetAt[ip]; !ok || now.Sub(last) > rl.window {
		rl.count[ip] = 0
		rl.resetAt[ip] = now
	}
	rl.count[ip]++
	return rl.count[ip] <= rl.limit
}

// Wrap 超限返回 429
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanup 删除两个窗口内没有请求的 IP
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for ip, last := range rl.resetAt {
		if now.Sub(last) > 2*rl.window {
			delete(rl.resetAt, ip)
			delete(rl.count, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup 定时清理不活跃记录，ctx 取消后退出
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}
