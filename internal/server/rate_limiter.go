// Package server throttles inbound frames per connection so one chatty
// client cannot monopolize the hub.
package server

import (
	"sync"
	"time"
)

// messageLimiter is a token bucket sized by RateLimitConfig: a connection may
// burst up to Burst frames, then refills continuously at Burst tokens per
// RefillInterval.
type messageLimiter struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	perSecond  float64
	lastRefill time.Time
}

func newMessageLimiter(cfg RateLimitConfig) *messageLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &messageLimiter{
		tokens:     float64(burst),
		burst:      float64(burst),
		perSecond:  float64(burst) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available. Frames arriving with an empty bucket
// are discarded by the caller, not queued.
func (l *messageLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(l.lastRefill).Seconds(); elapsed > 0 {
		l.tokens += elapsed * l.perSecond
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.lastRefill = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
