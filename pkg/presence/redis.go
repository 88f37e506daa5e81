package presence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the env-tagged Redis presence settings.
type RedisConfig struct {
	Prefix string        `env:"PRESENCE_PREFIX" envDefault:"presence:"`
	TTL    time.Duration `env:"PRESENCE_TTL" envDefault:"2m"`
}

// releaseScript decrements the counter and records last_seen once it
// reaches zero, so concurrent disconnects of one user cannot go negative.
var releaseScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
	redis.call("DEL", KEYS[1])
	redis.call("SET", KEYS[2], ARGV[1])
	return 0
end
return n
`)

// Redis stores presence counters in Redis so every node sees the same state.
// The counter TTL is renewed on connect and on every Refresh; a node that dies
// without disconnecting leaves users online for at most one TTL. Refresh must
// run more often than TTL while sessions stay open.
type Redis struct {
	client redis.Cmdable
	cfg    RedisConfig
	now    func() time.Time
}

// NewRedis returns a tracker on client. Empty Prefix and TTL take the
// RedisConfig defaults.
func NewRedis(client redis.Cmdable, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "presence:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	return &Redis{client: client, cfg: cfg, now: time.Now}
}

func (r *Redis) countKey(userID int64) string {
	return r.cfg.Prefix + strconv.FormatInt(userID, 10)
}

func (r *Redis) lastSeenKey(userID int64) string {
	return r.cfg.Prefix + strconv.FormatInt(userID, 10) + ":last_seen"
}

// Connect increments the user's counter and renews its TTL in one transaction.
func (r *Redis) Connect(ctx context.Context, userID int64) error {
	key := r.countKey(userID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, key)
		p.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Refresh renews the counter TTL. It never recreates an expired counter.
func (r *Redis) Refresh(ctx context.Context, userID int64) error {
	if err := r.client.Expire(ctx, r.countKey(userID), r.cfg.TTL).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Disconnect decrements the counter and stamps last seen once it reaches zero.
func (r *Redis) Disconnect(ctx context.Context, userID int64) error {
	keys := []string{r.countKey(userID), r.lastSeenKey(userID)}
	if err := releaseScript.Run(ctx, r.client, keys, r.now().UTC().Unix()).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Status reads the counter and last seen keys in one round trip.
func (r *Redis) Status(ctx context.Context, userID int64) (Status, error) {
	vals, err := r.client.MGet(ctx, r.countKey(userID), r.lastSeenKey(userID)).Result()
	if err != nil {
		return Status{}, errors.Join(ErrUnavailable, err)
	}
	var st Status
	if s, ok := vals[0].(string); ok {
		n, _ := strconv.Atoi(s)
		st.Connections = max(n, 0)
		st.Online = st.Connections > 0
	}
	if s, ok := vals[1].(string); ok {
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			t := time.Unix(sec, 0).UTC()
			st.LastSeen = &t
		}
	}
	return st, nil
}
