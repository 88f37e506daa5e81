// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis backed stores.
//
// The chat socket uses it to cap how fast one user can post messages:
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       5,
//		RefillRate:     5,
//		RefillInterval: 10 * time.Second,
//	})
//	res, err := limiter.Allow(ctx, "chat:42")
//	if err == nil && !res.Allowed() {
//		// wait res.RetryAfter()
//	}
//
// A denied request consumes nothing, so retries after the reset time succeed.
// RedisStore keeps the same algorithm in a Lua script so several processes
// share one bucket per key.
package ratelimiter
