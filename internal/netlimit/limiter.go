// Package netlimit provides per-source token bucket rate limiting for
// outbound API and channel traffic.
package netlimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Quota configures one named source's bucket.
type Quota struct {
	RPS   float64 // sustained requests per second
	Burst int     // bucket depth
}

// PerMinute builds a Quota from a per-minute budget.
func PerMinute(n int) Quota {
	return Quota{RPS: float64(n) / 60.0, Burst: maxInt(1, n/10)}
}

// PerHour builds a Quota from a per-hour budget.
func PerHour(n int) Quota {
	return Quota{RPS: float64(n) / 3600.0, Burst: maxInt(1, n/10)}
}

// Limiter gates requests per source name. Unknown sources fall back to a
// default quota rather than passing unthrottled.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	quotas   map[string]Quota
	fallback Quota
}

// NewLimiter creates a limiter with per-source quotas and a fallback for
// sources that were never configured.
func NewLimiter(quotas map[string]Quota, fallback Quota) *Limiter {
	if fallback.RPS <= 0 {
		fallback = Quota{RPS: 1, Burst: 1}
	}
	l := &Limiter{
		buckets:  make(map[string]*rate.Limiter, len(quotas)),
		quotas:   make(map[string]Quota, len(quotas)),
		fallback: fallback,
	}
	for name, q := range quotas {
		l.quotas[name] = q
	}
	return l
}

func (l *Limiter) bucket(source string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[source]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[source]; ok {
		return b
	}
	q, ok := l.quotas[source]
	if !ok {
		q = l.fallback
	}
	b = rate.NewLimiter(rate.Limit(q.RPS), q.Burst)
	l.buckets[source] = b
	return b
}

// Acquire blocks until a token is available for the source or the context is
// cancelled. Cancellation surfaces as ErrRateCancelled; tokens are never
// silently dropped.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	if err := l.bucket(source).Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrRateCancelled, source, err)
	}
	return nil
}

// Allow reports whether a token is immediately available and consumes it.
func (l *Limiter) Allow(source string) bool {
	return l.bucket(source).Allow()
}

// SetQuota replaces a source's quota; the bucket is rebuilt on next use.
func (l *Limiter) SetQuota(source string, q Quota) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quotas[source] = q
	delete(l.buckets, source)
}

// Stats describes one source's bucket state.
type Stats struct {
	Source          string        `json:"source"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"`
}

// Snapshot returns current stats for every instantiated bucket.
func (l *Limiter) Snapshot() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Stats, len(l.buckets))
	for source, b := range l.buckets {
		res := b.Reserve()
		delay := res.Delay()
		res.Cancel()
		out[source] = Stats{
			Source:          source,
			RPS:             float64(b.Limit()),
			Burst:           b.Burst(),
			TokensAvailable: b.Tokens(),
			Delay:           delay,
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
