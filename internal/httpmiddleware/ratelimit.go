package httpmiddleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter enforces a per-client-IP request budget.
type RateLimiter struct {
	limit     rate.Limit
	perMinute int
	burst     int
	ttl       time.Duration

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter allows perMinute requests per IP with a burst of the same
// size. Idle entries are swept every cleanup interval.
func NewRateLimiter(perMinute int, cleanup time.Duration) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	rl := &RateLimiter{
		limit:     rate.Limit(float64(perMinute) / 60.0),
		perMinute: perMinute,
		burst:     perMinute,
		ttl:       2 * cleanup,
		clients:   make(map[string]*clientLimiter),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	go rl.cleanupLoop(cleanup)
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware returns the gin handler.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !rl.get(ip).Allow() {
			// seconds until one token refills
			retry := (60 + rl.perMinute - 1) / rl.perMinute
			c.Header("Retry-After", strconv.Itoa(retry))
			slog.Warn("rate limit exceeded", "client_ip", ip, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Clients returns the number of tracked IPs.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastAccess = rl.now()
	return cl.limiter
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > rl.ttl {
			delete(rl.clients, ip)
		}
	}
}
