package gateway

import (
	"fmt"
	"sync"
	"time"
)

const (
	// rateLimitCap is the maximum number of events accepted per minute for
	// one (ip, contentRef, experimentID) tuple.
	rateLimitCap = 120
	// bucketTTL keeps a counter slightly past its minute so in-flight
	// requests near the boundary still resolve against it.
	bucketTTL = 65 * time.Second
)

type bucket struct {
	count     int
	expiresAt time.Time
}

// Limiter is a fixed-window event rate limiter keyed by submitting IP,
// content ref, experiment id, and UTC minute. Over-limit submissions are
// dropped silently by the gateway, never rejected.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
}

// NewLimiter returns an empty rate limiter.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]bucket)}
}

// Allow records one submission and reports whether it fits the per-minute
// cap. Expired sibling buckets are evicted opportunistically.
func (l *Limiter) Allow(ip, contentRef, experimentID string, now time.Time) bool {
	if l == nil {
		return true
	}
	key := fmt.Sprintf("%s|%s|%s|%s", ip, contentRef, experimentID, now.UTC().Format("200601021504"))

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.After(b.expiresAt) {
			delete(l.buckets, k)
		}
	}

	b := l.buckets[key]
	if b.count >= rateLimitCap {
		return false
	}
	if b.count == 0 {
		b.expiresAt = now.Add(bucketTTL)
	}
	b.count++
	l.buckets[key] = b
	return true
}

// Purge discards every counter. Called on shutdown.
func (l *Limiter) Purge() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]bucket)
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
