package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedClients caps the limiter table; it is reset when exceeded.
const maxTrackedClients = 10_000

// ClientLimiter applies a token bucket per client address.
type ClientLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
	rps    rate.Limit
	burst  int
}

// NewClientLimiter allows rps requests per second per client with bursts of
// up to burst requests.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limits: make(map[string]*rate.Limiter),
		rps:    rate.Limit(rps),
		burst:  burst,
	}
}

func (cl *ClientLimiter) getLimiter(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if l, ok := cl.limits[key]; ok {
		return l
	}
	if len(cl.limits) >= maxTrackedClients {
		clear(cl.limits)
	}
	l := rate.NewLimiter(cl.rps, cl.burst)
	cl.limits[key] = l
	return l
}

// Allow reports whether a request from key may proceed now.
func (cl *ClientLimiter) Allow(key string) bool {
	return cl.getLimiter(key).Allow()
}

// Middleware rejects requests over the limit with 429.
func (cl *ClientLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cl.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", NewKind("api.rate_limit", ErrRateLimited))
			return
		}
		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
