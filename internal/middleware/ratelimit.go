package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/terraconstructs/authuser/internal/telemetry"
)

// LoginRateLimiter throttles credential endpoints per client IP using a
// token bucket for each address. Idle buckets are dropped periodically.
type LoginRateLimiter struct {
	rps     rate.Limit
	burst   int
	metrics *telemetry.ServerMetrics

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLoginRateLimiter creates a limiter allowing rps requests per second
// with the given burst for each client IP.
func NewLoginRateLimiter(rps float64, burst int, metrics *telemetry.ServerMetrics) *LoginRateLimiter {
	l := &LoginRateLimiter{
		rps:             rate.Limit(rps),
		burst:           burst,
		metrics:         metrics,
		limiters:        make(map[string]*limiterEntry),
		cleanupInterval: 5 * time.Minute,
		cleanupStop:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// Allow reports whether a request from key may proceed.
func (l *LoginRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// Middleware rejects over-limit requests with 429.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			l.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already rewritten RemoteAddr from proxy headers when it is installed.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *LoginRateLimiter) cleanup() {
	defer close(l.cleanupDone)

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now().Add(-2 * l.cleanupInterval))
		case <-l.cleanupStop:
			return
		}
	}
}

func (l *LoginRateLimiter) evictIdle(threshold time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, entry := range l.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(l.limiters, key)
			evicted++
		}
	}
	return evicted
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *LoginRateLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.cleanupStop)
		<-l.cleanupDone
	})
	return nil
}
