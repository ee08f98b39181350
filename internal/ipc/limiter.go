package ipc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultLimiterIdleTTL = 10 * time.Minute
	limiterSweepEvery     = 512
)

// peerLimiter is a token bucket per peer key with periodic idle eviction.
type peerLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*peerBucket
	hits  uint64
}

type peerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newPeerLimiter returns nil, which allows everything, unless rps and burst
// are both positive.
func newPeerLimiter(rps float64, burst int, idleTTL time.Duration) *peerLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = defaultLimiterIdleTTL
	}
	return &peerLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*peerBucket),
	}
}

func (l *peerLimiter) allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &peerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%limiterSweepEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

func (l *peerLimiter) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
