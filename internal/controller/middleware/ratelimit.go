package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter rate-limits per key (a requester id). An entry expires
// after the ttl and is replaced by a fresh limiter on that key's next
// request; expired entries are not removed from the map.
type KeyedLimiter struct {
	limiters sync.Map // key -> *cachedLimiter
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// NewKeyedLimiter creates a limiter allowing one event per interval
// with the given burst.
func NewKeyedLimiter(interval time.Duration, burst int, ttl time.Duration) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limit: rate.Every(interval),
		burst: burst,
		ttl:   ttl,
	}
}

// Allow reports whether the key may proceed now.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.getOrCreate(key).Allow()
}

func (k *KeyedLimiter) getOrCreate(key string) *rate.Limiter {
	if v, ok := k.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(k.limit, k.burst)
	k.limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(k.ttl),
	})
	return limiter
}
