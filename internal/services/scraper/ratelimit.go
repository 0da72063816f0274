package scraper

import (
	"sync"

	"golang.org/x/time/rate"
)

// companyLimiters hands out one token bucket per company key so one slow or
// large publisher cannot absorb the whole worker's request budget. Capacity
// and refill both equal the per-second cap.
type companyLimiters struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newCompanyLimiters(perSecond int) *companyLimiters {
	if perSecond < 1 {
		perSecond = 1
	}
	return &companyLimiters{
		rate:     rate.Limit(perSecond),
		burst:    perSecond,
		limiters: make(map[string]*rate.Limiter),
	}
}

// get returns the limiter for a company key, creating it on first use
func (c *companyLimiters) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(c.rate, c.burst)
		c.limiters[key] = limiter
	}
	return limiter
}
