package ratelimit

import (
	"sync"
	"time"
)

// epsilon absorbs float drift so a bucket refilled over exactly one
// interval admits.
const epsilon = 1e-9

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a keyed token bucket. Keys are source ids.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func New() *Limiter { return NewWithClock(time.Now) }

// NewWithClock lets tests drive refill.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{m: make(map[string]*bucket), now: now}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	// refill
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1-epsilon {
		b.tokens -= 1
		return true
	}
	return false
}

// AllowEvery admits key at most once per interval. Zero interval always admits.
func (l *Limiter) AllowEvery(key string, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	return l.Allow(key, 1, 1/interval.Seconds())
}
