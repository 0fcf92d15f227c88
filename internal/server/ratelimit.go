package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/junu-go/internal/logging"
)

// Per-client defaults for the model and speech routes.
const (
	defaultRateLimit = 2
	defaultRateBurst = 10

	// clientIdleTTL is how long a client bucket survives without traffic.
	clientIdleTTL = 5 * time.Minute
	sweepInterval = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles the model and speech routes per client address.
type rateLimiter struct {
	rps        rate.Limit
	burst      int
	trustProxy bool
	metrics    *Metrics
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// limiterConfig configures newRateLimiter.
type limiterConfig struct {
	RPS   float64
	Burst int
	// TrustProxy takes the client address from X-Forwarded-For. Enable it
	// only behind a reverse proxy that overwrites the header.
	TrustProxy bool
	Metrics    *Metrics
}

// newRateLimiter returns a limiter and a stop function for its sweeper.
func newRateLimiter(cfg limiterConfig, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		rps:        rate.Limit(cfg.RPS),
		burst:      cfg.Burst,
		trustProxy: cfg.TrustProxy,
		metrics:    cfg.Metrics,
		log:        log,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.sweep()
			}
		}
	}()
	return rl, func() { close(done) }
}

// reserve takes one token for client. It returns 0 when the request may
// proceed, or how long the client should wait otherwise.
func (rl *rateLimiter) reserve(client string) time.Duration {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64)
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// sweep forgets clients idle for longer than clientIdleTTL.
func (rl *rateLimiter) sweep() {
	cutoff := rl.now().Add(-clientIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	evicted := 0
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
			evicted++
		}
	}
	if evicted > 0 {
		rl.log.Debug("rate limiter: evicted idle clients",
			slog.Int("evicted", evicted),
			slog.Int("tracked", len(rl.buckets)),
		)
	}
}

// size reports the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r, rl.trustProxy)
		wait := rl.reserve(client)
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("client", client),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", wait),
		)
		if rl.metrics != nil {
			rl.metrics.rateLimitedTotal.WithLabelValues(handlerLabel(r)).Inc()
		}
		w.Header().Set("Retry-After", retryAfter(wait))
		writeStatus(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// retryAfter renders d as whole seconds, rounded up, at least 1.
func retryAfter(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 || d == time.Duration(math.MaxInt64) {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// clientIP returns the address the request is attributed to. With
// trustProxy set, the first X-Forwarded-For hop wins.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
