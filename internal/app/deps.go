package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinship/backend/internal/activity"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/cache"
	"github.com/kinship/backend/internal/config"
	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/friends"
	"github.com/kinship/backend/internal/handlers"
	"github.com/kinship/backend/internal/members"
	"github.com/kinship/backend/internal/middleware"
	"github.com/kinship/backend/internal/profile"
	"github.com/kinship/backend/internal/repositories"
	"github.com/kinship/backend/internal/rewrites"
	"github.com/kinship/backend/internal/storage"
)

// dependencies is the wired object graph behind the HTTP server.
type dependencies struct {
	handlers handlers.Dependencies
	tokens   middleware.TokenVerifier
	cleanup  func(context.Context) error
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (dependencies, error) {
	var (
		counters cache.Counters = cache.Noop{}
		sinks    []events.Sink
		closers  []func(context.Context) error
	)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		counters = cache.NewRedisCounters(client, cfg.CounterCacheTTL)
		queue := events.NewQueueSink(client, events.QueueSinkConfig{Queue: cfg.Redis.EventQueue}, logger)
		sinks = append(sinks, queue)
		closers = append(closers, queue.Shutdown, func(context.Context) error { return client.Close() })
		logger.Info("redis enabled", "addr", cfg.Redis.Addr, "eventQueue", cfg.Redis.EventQueue)
	}
	bus := events.NewBus(sinks...)

	components := rewrites.DefaultComponents()
	rewriteStore := rewrites.NewStore(repositories.NewPostgresOptionStore(pool), cfg.RewriteCacheTTL, components)
	router, err := rewrites.NewRouter(cfg.HomeURL, cfg.PrettyPermalinks, rewriteStore, components)
	if err != nil {
		return dependencies{}, fmt.Errorf("build url router: %w", err)
	}

	users := repositories.NewPostgresUserRepository(pool)
	friendService := friends.NewService(repositories.NewPostgresFriendRepository(pool), users, counters, bus)

	recorder, err := activity.NewRecorder(repositories.NewPostgresActivityRepository(pool), users, router, friendService, bus, activity.Config{
		Throttles: map[string]time.Duration{
			activity.TypeActivityUpdate: cfg.ActivityThrottle,
			activity.TypeUpdatedProfile: cfg.ProfileUpdateThrottle,
		},
		SnowflakeNode: cfg.SnowflakeNode,
	})
	if err != nil {
		return dependencies{}, fmt.Errorf("build activity recorder: %w", err)
	}
	recorder.Subscribe(bus)

	profileService := profile.NewService(repositories.NewPostgresProfileRepository(pool), users, friendService, bus)

	memberDeps := members.Deps{
		Users:      users,
		Profiles:   profileService,
		Friends:    friendService,
		Activities: repositories.NewPostgresActivityRepository(pool),
		URLs:       router,
		Events:     bus,
	}
	if cfg.ObjectStore.Bucket != "" {
		objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return dependencies{}, fmt.Errorf("configure avatar storage: %w", err)
		}
		memberDeps.Objects = objects
	} else {
		logger.Warn("avatar storage disabled; set KINSHIP_S3_BUCKET to enable uploads")
	}

	sessions := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, repositories.NewPostgresSessionStore(pool))

	return dependencies{
		handlers: handlers.Dependencies{
			Users:       users,
			Sessions:    sessions,
			Members:     members.NewService(memberDeps),
			Friends:     friendService,
			Profiles:    profileService,
			Activity:    recorder,
			Router:      router,
			Rewrites:    rewriteStore,
			Limiter:     middleware.NewRateLimiter(cfg.RateLimit),
			HealthCheck: func(ctx context.Context) error { return db.Ping(ctx, pool) },
		},
		tokens: sessions,
		cleanup: func(ctx context.Context) error {
			var firstErr error
			for _, closeFn := range closers {
				if err := closeFn(ctx); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	}, nil
}
