package color

import (
	"sync"
	"time"
)

// SmootherLen is the number of colours averaged by a Smoother.
const SmootherLen = 3

// Smoother emits the integer-truncated mean of the last SmootherLen colours.
type Smoother struct {
	history [SmootherLen]RGB
	count   int
	next    int
}

// Push adds c and returns the current mean.
func (s *Smoother) Push(c RGB) RGB {
	s.history[s.next] = c
	s.next = (s.next + 1) % SmootherLen
	if s.count < SmootherLen {
		s.count++
	}

	var r, g, b int
	for i := 0; i < s.count; i++ {
		r += int(s.history[i].R)
		g += int(s.history[i].G)
		b += int(s.history[i].B)
	}
	return RGB{R: uint8(r / s.count), G: uint8(g / s.count), B: uint8(b / s.count)}
}

// Reset empties the history.
func (s *Smoother) Reset() {
	s.count = 0
	s.next = 0
}

// RateLimiter lets an event through only when strictly more than Interval
// has passed since the last one it let through. The first call always passes.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewRateLimiter returns a limiter with the given minimum spacing.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether an event at now may pass, recording it if so.
func (l *RateLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() && now.Sub(l.last) <= l.interval {
		return false
	}
	l.last = now
	return true
}

// Interval returns the configured spacing.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}
