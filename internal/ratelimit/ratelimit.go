// Package ratelimit implements a per-host token-bucket limiter with a
// minimum-interval shape, grounded directly on the original Python
// implementation's rate_limiter.py rather than a third-party dependency —
// no rate-limiting library appears anywhere in the retrieved example
// corpus, so this stays a small stdlib primitive (see DESIGN.md).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between successive Acquire calls,
// suspending the caller until that interval has elapsed since the last
// acquisition.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
}

// New creates a limiter allowing callsPerSecond acquisitions per second.
func New(callsPerSecond float64) *Limiter {
	return &Limiter{
		minInterval: time.Duration(float64(time.Second) / callsPerSecond),
	}
}

// Acquire blocks the caller until the minimum interval has elapsed since
// the previous acquisition on this limiter, then records the new call
// time. It honors ctx cancellation while waiting, returning ctx.Err()
// without recording a call if ctx is canceled first.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !l.lastCall.IsZero() {
		elapsed := now.Sub(l.lastCall)
		if wait := l.minInterval - elapsed; wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
			now = time.Now()
		}
	}
	l.lastCall = now
	return nil
}

// NWS is the shared NWS host limiter: 1 request per second.
var NWS = New(1.0)

// OpenMeteo is the shared Open-Meteo host limiter: 5 requests per second.
var OpenMeteo = New(5.0)
