package crawler

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter paces requests per host with a token bucket
type hostLimiter struct {
	perSecond float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newHostLimiter returns nil (no pacing) when perSecond is not positive
func newHostLimiter(perSecond float64) *hostLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &hostLimiter{
		perSecond: perSecond,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// wait blocks until a request to host is permitted or ctx is done
func (h *hostLimiter) wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		burst := int(h.perSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.perSecond), burst)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
