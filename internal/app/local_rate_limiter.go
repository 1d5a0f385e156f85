package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localLimiterSweepThreshold = 10000

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter is an in-process token bucket per scope and subject. It is used when
// no Redis is configured, so limits are per replica.
type LocalRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	now     func() time.Time
}

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		buckets: make(map[string]*localBucket),
		now:     time.Now,
	}
}

// ConsumeRateLimit takes one token. A denied call reports limit+1 as its count so callers
// can treat both limiters alike.
func (l *LocalRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return 0, 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := normalizedScope + ":" + normalizedSubject
	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= localLimiterSweepThreshold {
			l.sweep(now, window)
		}
		every := window / time.Duration(limit)
		bucket = &localBucket{limiter: rate.NewLimiter(rate.Every(every), limit)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return limit + 1, retryAfterFromMillis(window.Milliseconds()), nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return limit + 1, retryAfterFromMillis(delay.Milliseconds()), nil
	}

	used := limit - int(bucket.limiter.TokensAt(now))
	if used < 1 {
		used = 1
	}
	return used, 0, nil
}

func (l *LocalRateLimiter) sweep(now time.Time, idle time.Duration) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
}
