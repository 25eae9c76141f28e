package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/ragchat-go/internal/logging"
)

// Per-IP token bucket defaults for the chat, upload and search routes.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// limiterTTL is how long an idle client keeps its bucket before eviction.
const limiterTTL = 5 * time.Minute

// evictInterval is how often idle buckets are swept.
const evictInterval = time.Minute

// clientBucket is one client's token bucket and when it was last used.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterConfig holds the parameters of a rateLimiter.
type rateLimiterConfig struct {
	// rps is the sustained requests per second per client.
	rps float64
	// burst is the instantaneous burst per client.
	burst int
	// rejected counts 429 responses per route. Nil disables counting.
	rejected *prometheus.CounterVec
	// log receives rejection events.
	log *slog.Logger
}

// rateLimiter enforces a per-IP token bucket in front of the expensive
// routes: each chat turn and upload costs model or embedding calls.
type rateLimiter struct {
	cfg rateLimiterConfig

	// retryAfter is the Retry-After value sent with 429s, the time for one
	// token to refill rounded up to whole seconds.
	retryAfter string

	mu       sync.Mutex
	limiters map[string]*clientBucket
}

// newRateLimiter constructs a rateLimiter and starts its eviction loop.
// Call the returned stop function to end the loop.
func newRateLimiter(cfg rateLimiterConfig) (*rateLimiter, func()) {
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	rl := &rateLimiter{
		cfg:        cfg,
		retryAfter: strconv.Itoa(refillSeconds(cfg.rps)),
		limiters:   make(map[string]*clientBucket),
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// refillSeconds is the whole number of seconds needed to earn one token.
func refillSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/rps)))
}

// getLimiter returns the bucket for ip, creating it on first use.
func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &clientBucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.rps), rl.cfg.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// evictLoop sweeps idle buckets until stopCh is closed.
func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict removes buckets idle longer than limiterTTL.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-limiterTTL)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// middleware rejects requests over the client's budget with 429 and a
// Retry-After header before they reach next.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.getLimiter(ip).Allow() {
			next.ServeHTTP(w, r)
			return
		}

		route := r.Pattern
		if route == "" {
			route = unmatchedHandler
		}
		if rl.cfg.rejected != nil {
			rl.cfg.rejected.WithLabelValues(route).Inc()
		}

		log := logging.FromContext(r.Context())
		log.Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("route", route),
		)
		w.Header().Set("Retry-After", rl.retryAfter)
		writeError(w, log, http.StatusTooManyRequests, "Too many requests, retry later")
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not trusted; clients behind one proxy share a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
