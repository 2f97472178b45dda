package channels

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket. Discord throttles message sends per
// channel, so the client keeps one bucket per destination.
type RateLimiter struct {
	rate       float64
	capacity   int
	tokens     float64
	lastRefill time.Time
	now        func() time.Time

	mu sync.Mutex
}

// NewRateLimiter creates a bucket refilling rate tokens per second up to capacity.
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		capacity:   capacity,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	return r.reserve() <= 0
}

// reserve consumes a token and returns 0, or returns the wait until one exists.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.rate
	if r.tokens > float64(r.capacity) {
		r.tokens = float64(r.capacity)
	}
	r.lastRefill = now

	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	if r.rate <= 0 {
		return time.Second
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second))
}

// ChannelLimiter keeps one RateLimiter per destination channel.
type ChannelLimiter struct {
	rate     float64
	capacity int

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewChannelLimiter creates a keyed limiter. A non-positive rate disables limiting.
func NewChannelLimiter(rate float64, capacity int) *ChannelLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelLimiter{
		rate:     rate,
		capacity: capacity,
		limiters: make(map[string]*RateLimiter),
	}
}

// Wait blocks until channelID may send.
func (c *ChannelLimiter) Wait(ctx context.Context, channelID string) error {
	if c == nil || c.rate <= 0 {
		return nil
	}
	c.mu.Lock()
	limiter, ok := c.limiters[channelID]
	if !ok {
		limiter = NewRateLimiter(c.rate, c.capacity)
		c.limiters[channelID] = limiter
	}
	c.mu.Unlock()
	return limiter.Wait(ctx)
}
