package reports

import (
	"context"
	"sync"
	"time"
)

// Rate limiting constants, carried over from the teacher's packet
// admission limiter (ratelimiter/ratelimiter.go) unchanged: a token
// bucket with the same shape, just keyed by fetch-service endpoint
// instead of by source IP, since this module paces outbound HTTP
// calls rather than admitting inbound packets.
const (
	requestsPerSecond  = 20
	requestsBurstable  = 5
	garbageCollectTime = time.Second
	requestCost        = time.Second / requestsPerSecond // as a sleep duration
	maxTokens          = int64(requestCost) * requestsBurstable
)

type limiterEntry struct {
	mu       sync.Mutex
	lastTime time.Time
	tokens   int64
}

// RateLimiter is a generic-keyed token bucket. The teacher's version
// is specialized to netip.Addr for inbound-packet DoS protection; this
// one is keyed by any comparable value (here, a reports-service
// endpoint string) so the same bucket structure can pace this
// module's outbound fetch calls instead.
type RateLimiter[K comparable] struct {
	mu      sync.RWMutex
	timeNow func() time.Time
	table   map[K]*limiterEntry
}

// NewRateLimiter constructs a RateLimiter and starts its background
// garbage collector.
func NewRateLimiter[K comparable]() *RateLimiter[K] {
	rl := &RateLimiter[K]{
		timeNow: time.Now,
		table:   make(map[K]*limiterEntry),
	}
	go rl.collectGarbage()
	return rl
}

func (rl *RateLimiter[K]) collectGarbage() {
	ticker := time.NewTicker(garbageCollectTime)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for key, entry := range rl.table {
			entry.mu.Lock()
			stale := rl.timeNow().Sub(entry.lastTime) > garbageCollectTime
			entry.mu.Unlock()
			if stale {
				delete(rl.table, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow reports whether a call under key may proceed right now,
// debiting one request's worth of tokens if so.
func (rl *RateLimiter[K]) Allow(key K) bool {
	rl.mu.RLock()
	entry := rl.table[key]
	rl.mu.RUnlock()

	if entry == nil {
		entry = &limiterEntry{tokens: maxTokens - int64(requestCost), lastTime: rl.timeNow()}
		rl.mu.Lock()
		rl.table[key] = entry
		rl.mu.Unlock()
		return true
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	now := rl.timeNow()
	entry.tokens += now.Sub(entry.lastTime).Nanoseconds()
	entry.lastTime = now
	if entry.tokens > maxTokens {
		entry.tokens = maxTokens
	}
	if entry.tokens > int64(requestCost) {
		entry.tokens -= int64(requestCost)
		return true
	}
	return false
}

// Wait blocks until key's bucket admits a request or ctx is done.
// Unlike Allow, a fetcher wants to pace itself rather than drop a
// window outright, so it polls Allow instead of rejecting.
func (rl *RateLimiter[K]) Wait(ctx context.Context, key K) error {
	for {
		if rl.Allow(key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(requestCost):
		}
	}
}
