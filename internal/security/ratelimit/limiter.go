package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key (tenant id).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	cleanup *time.Ticker
	done    chan struct{}
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows maxRequests per window per key, with bursts up to maxRequests.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:   maxRequests,
		idle:    15 * time.Minute,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanupOldBuckets()
	return l
}

// Allow reports whether key may make another request now. The empty key is never limited.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	l.mu.Lock()
	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (l *Limiter) cleanupOldBuckets() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			l.prune()
		}
	}
}

func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	stale := l.now().Add(-l.idle)
	for key, b := range l.buckets {
		if b.lastSeen.Before(stale) {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) Stop() {
	l.cleanup.Stop()
	close(l.done)
}
