package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles calls to one upstream API and holds off after a 429
type Limiter struct {
	limiter    *rate.Limiter
	name       string
	mu         sync.Mutex
	penalty    time.Duration
	maxPenalty time.Duration
	until      time.Time
	now        func() time.Time
}

const basePenalty = time.Second

// NewLimiter creates a limiter allowing perMinute requests per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	rps := float64(perMinute) / 60.0
	// burst of 1/10th of the minute budget, between 1 and 5
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return &Limiter{
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		name:       name,
		penalty:    basePenalty,
		maxPenalty: 2 * time.Minute,
		now:        time.Now,
	}
}

// Wait blocks until the cooldown has passed and a token is available
func (l *Limiter) Wait(ctx context.Context) error {
	if d := l.Cooldown(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may be sent right now
func (l *Limiter) Allow() bool {
	if l.Cooldown() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// Penalize starts a cooldown after the upstream answered 429.
// Consecutive penalties double the cooldown up to two minutes.
func (l *Limiter) Penalize() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.until = l.now().Add(l.penalty)
	l.penalty *= 2
	if l.penalty > l.maxPenalty {
		l.penalty = l.maxPenalty
	}
}

// Reset clears the penalty after a successful request
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.penalty = basePenalty
	l.until = time.Time{}
}

// Cooldown returns how long requests are still held off
func (l *Limiter) Cooldown() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.until.Sub(l.now())
	if d < 0 {
		return 0
	}
	return d
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

// Backoff is the wait schedule between retries of a failed fetch.
// The n-th retry waits n*Base, twice that when the upstream was rate limiting.
type Backoff struct {
	Attempts int
	Base     time.Duration
}

// DefaultBackoff makes 3 attempts, waiting 5s then 10s
var DefaultBackoff = Backoff{Attempts: 3, Base: 5 * time.Second}

// Delay returns the wait before retry number attempt (1-based)
func (b Backoff) Delay(attempt int, rateLimited bool) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * b.Base
	if rateLimited {
		d *= 2
	}
	return d
}

// Sleep waits for the given delay or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
