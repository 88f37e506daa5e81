package main

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/marketpulse/pkg/chatstore"
	"github.com/dmitrymomot/marketpulse/pkg/config"
	"github.com/dmitrymomot/marketpulse/pkg/httpserver"
	"github.com/dmitrymomot/marketpulse/pkg/identity"
	"github.com/dmitrymomot/marketpulse/pkg/logger"
	"github.com/dmitrymomot/marketpulse/pkg/notifications"
	"github.com/dmitrymomot/marketpulse/pkg/pg"
	"github.com/dmitrymomot/marketpulse/pkg/presence"
	"github.com/dmitrymomot/marketpulse/pkg/ratelimiter"
	"github.com/dmitrymomot/marketpulse/pkg/realtime"
	"github.com/dmitrymomot/marketpulse/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Config
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithContextExtractors(logger.RequestIDExtractor))

	db, err := pg.Connect(ctx, cfg.DB)
	if err != nil {
		fatal(log, "database", "failed to connect to database", err)
	}
	if err := pg.Migrate(ctx, db, chatstore.Migrations, cfg.DB, log.With(logger.Component("migration"))); err != nil {
		fatal(log, "migration", "failed to migrate database", err)
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		fatal(log, "redis", "failed to connect to redis", err)
	}

	resolver, err := identity.NewResolver(cfg.JWT)
	if err != nil {
		fatal(log, "identity", "failed to create token resolver", err)
	}

	bucket, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, cfg.ThrottlePrefix), cfg.Throttle)
	if err != nil {
		fatal(log, "throttle", "failed to create rate limiter", err)
	}

	store := chatstore.NewPostgres(db)
	fanout := realtime.NewFanout(
		realtime.NewRegistry(
			realtime.WithMailboxCapacity(cmp.Or(cfg.Realtime.MailboxCapacity, realtime.DefaultMailboxCapacity)),
			realtime.WithRegistryLogger(log),
		),
		realtime.NewBus(realtime.WithBusLogger(log)),
	)
	notifier := notifications.NewManager(store.Notifications(), fanout,
		notifications.WithPreferences(store),
		notifications.WithManagerLogger(log),
	)

	svc := realtime.New(fanout, resolver, store, store,
		realtime.WithConfig(cfg.Realtime),
		realtime.WithLogger(log),
		realtime.WithNotifier(notifier),
		realtime.WithPresence(presence.NewRedis(rdb, cfg.Presence)),
		realtime.WithThrottle(realtime.NewChatThrottle(bucket,
			realtime.WithDuplicateWindow(cfg.DuplicateWindow),
			realtime.WithThrottleLogger(log),
		)),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, cfg.ReadyTimeout, map[string]httpserver.Check{
		"postgres": pg.Healthcheck(db),
		"redis":    redis.Healthcheck(rdb),
	}))
	svc.Routes(r, identity.Middleware(resolver))

	srv := httpserver.NewFromConfig(cfg.Server,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(addr string) {
			log.Info("server started", slog.String("addr", addr))
		}),
		httpserver.WithDrainHook(svc.Close),
		httpserver.WithStopHook(func() {
			if err := rdb.Close(); err != nil {
				log.Warn("close redis client", logger.Error(err))
			}
			db.Close()
		}),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Run(ctx, r) })

	if err := eg.Wait(); err != nil {
		fatal(log, "server", "failed to run server", err)
	}

	log.Info("application stopped")
}

func fatal(log *slog.Logger, component, msg string, err error) {
	log.Error(msg, logger.Component(component), logger.Error(err))
	os.Exit(1)
}
