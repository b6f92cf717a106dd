// Package ratelimit enforces a minimum interval between successive outbound
// operations of one extractor unit.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces calls to Wait at least Interval apart. The first call
// proceeds immediately. A zero interval disables limiting.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	lim      *rate.Limiter
}

// New returns a limiter with the given minimum interval.
func New(interval time.Duration) *Limiter {
	l := &Limiter{interval: interval}
	l.lim = rate.NewLimiter(limitFor(interval), 1)
	return l
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// Wait blocks until the next operation may start or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}

// Interval reports the current minimum interval.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Raise lengthens the interval to d when d is larger, e.g. for a host's
// robots.txt crawl-delay. It never shortens it.
func (l *Limiter) Raise(d time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if d <= l.interval {
		return
	}
	l.interval = d
	l.lim.SetLimit(limitFor(d))
}
