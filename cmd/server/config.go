package main

import (
	"time"

	"github.com/dmitrymomot/marketpulse/pkg/httpserver"
	"github.com/dmitrymomot/marketpulse/pkg/identity"
	"github.com/dmitrymomot/marketpulse/pkg/logger"
	"github.com/dmitrymomot/marketpulse/pkg/pg"
	"github.com/dmitrymomot/marketpulse/pkg/presence"
	"github.com/dmitrymomot/marketpulse/pkg/ratelimiter"
	"github.com/dmitrymomot/marketpulse/pkg/realtime"
	"github.com/dmitrymomot/marketpulse/pkg/redis"
)

// Config is the whole process configuration. Nested structs keep their own
// variable names; see each package for the full list.
type Config struct {
	Log      logger.Config
	Server   httpserver.Config
	DB       pg.Config
	Redis    redis.Config
	JWT      identity.Config
	Realtime realtime.Config
	Throttle ratelimiter.Config
	Presence presence.RedisConfig

	ThrottlePrefix  string        `env:"THROTTLE_PREFIX" envDefault:"throttle:"`
	DuplicateWindow time.Duration `env:"THROTTLE_DUPLICATE_WINDOW" envDefault:"5s"`
	ReadyTimeout    time.Duration `env:"HEALTH_READY_TIMEOUT" envDefault:"2s"`
}
