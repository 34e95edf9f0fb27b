// Package ratelimit gates connection admission per source IP address using
// token buckets: every source gets requests-per-minute tokens refilled
// continuously with a fixed burst capacity.
package ratelimit

import (
	"net/netip"
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

// pruneAge is how long an idle source keeps its bucket before it is
// dropped.  A dropped bucket is recreated full on the next connection,
// which only ever errs in the client's favor.
const pruneAge = 10 * time.Minute

// PerSource is a per-source-IP connection rate limiter.  The zero value is
// not usable, use New.  All methods are safe for concurrent use.
type PerSource struct {
	mu      sync.Mutex
	buckets map[netip.Addr]*sourceBucket

	perMinute int
	burst     int64
}

// sourceBucket pairs a token bucket with the time it was last used.
type sourceBucket struct {
	bucket   *ratelimit.Bucket
	lastSeen time.Time
}

// New creates a *PerSource allowing perMinute connections per minute with
// the given burst per source address.  If perMinute is zero or negative the
// limiter admits everything.
func New(perMinute, burst int) (l *PerSource) {
	if burst < 1 {
		burst = 1
	}

	return &PerSource{
		buckets:   map[netip.Addr]*sourceBucket{},
		perMinute: perMinute,
		burst:     int64(burst),
	}
}

// Allow reports whether a connection from src may proceed and consumes one
// token if it may.
func (l *PerSource) Allow(src netip.Addr) (ok bool) {
	if l.perMinute <= 0 {
		return true
	}

	src = src.Unmap()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	sb, found := l.buckets[src]
	if !found {
		sb = &sourceBucket{
			bucket: ratelimit.NewBucketWithRate(float64(l.perMinute)/60, l.burst),
		}
		l.buckets[src] = sb
	}

	sb.lastSeen = now

	return sb.bucket.TakeAvailable(1) == 1
}

// prune drops buckets that have been idle for longer than pruneAge.  The
// caller must hold l.mu.
func (l *PerSource) prune(now time.Time) {
	for src, sb := range l.buckets {
		if now.Sub(sb.lastSeen) > pruneAge {
			delete(l.buckets, src)
		}
	}
}
