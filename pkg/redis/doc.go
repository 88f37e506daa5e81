// Package redis connects to Redis with retries and exposes a readiness probe.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// The client backs the shared chat throttle (ratelimiter.RedisStore) and
// cross-node presence (presence.Redis). Config is read from REDIS_* variables.
package redis
