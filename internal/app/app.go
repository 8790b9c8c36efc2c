package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/feed"
	"github.com/MrSnakeDoc/shelf/internal/httpserver"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/redis"
	"github.com/MrSnakeDoc/shelf/internal/store"
	"github.com/MrSnakeDoc/shelf/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/shelf/internal/store/redis"
	"github.com/MrSnakeDoc/shelf/internal/store/sqlstore"
	"github.com/MrSnakeDoc/shelf/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	repo        store.Repository
	feed        feed.Feed
}

func New() (*App, error) {
	cfg := config.Load()

	var logOpts []logger.Option
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logger.ToFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups))
	}
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog, logOpts...)

	ctx := context.Background()
	checks := map[string]deps.Check{}

	// Redis is optional; when configured it backs sessions and the change
	// feed, and may back bookmarks too.
	var redisClient *goredis.Client
	if cfg.RedisEnabled() {
		client, err := redis.Connect(ctx, redis.OptionsFromConfig(cfg), loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = client
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	repo, err := openRepository(ctx, cfg, redisClient)
	if err != nil {
		closeRedis(redisClient, loggerClient)
		return nil, err
	}
	if sqlRepo, ok := repo.(*sqlstore.Store); ok {
		checks["storage"] = func(ctx context.Context) error { return sqlRepo.DB().PingContext(ctx) }
	}
	loggerClient.Info("bookmark storage ready", logger.String("backend", cfg.Storage))

	var (
		sessions auth.Store
		changes  feed.Feed
	)
	if redisClient != nil {
		sessions = auth.NewRedisStore(redisClient)
		changes = feed.NewRedisFeed(redisClient, loggerClient)
	} else {
		loggerClient.Warn("redis not configured: sessions are in-memory and change events stay in this process")
		sessions = auth.NewMemoryStore()
		changes = feed.NewHub()
	}

	authSvc := auth.NewService(sessions, cfg.SessionTTL, loggerClient)
	platform := backend.New(authSvc, repo, changes, loggerClient)

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		Auth:           authSvc,
		Platform:       platform,
		ReadyChecks:    checks,
		AuthRateBurst:  cfg.AuthRateBurst,
		AuthRateRefill: cfg.AuthRateRefill,
		OriginPatterns: cfg.OriginPatterns,
		RefreshTimeout: cfg.RefreshTimeout,
		ImportMaxBytes: cfg.ImportMaxBytes,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		redisClient: redisClient,
		repo:        repo,
		feed:        changes,
	}, nil
}

func openRepository(ctx context.Context, cfg *config.Config, client *goredis.Client) (store.Repository, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case config.StorageRedis:
		if client == nil {
			return nil, fmt.Errorf("storage %q requires SHELF_REDIS_ADDR", cfg.Storage)
		}
		return redisstore.NewStore(client), nil
	case config.StorageSQLite:
		s, err := sqlstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite at %s: %w", cfg.SQLitePath, err)
		}
		return s, nil
	case config.StoragePostgres:
		s, err := sqlstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Shelf v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.feed.Close(); err != nil {
		a.logger.Warnf("failed to close change feed: %v", err)
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warnf("failed to close storage: %v", err)
	}
	closeRedis(a.redisClient, a.logger)

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ Shelf stopped cleanly")
	return nil
}

func closeRedis(client *goredis.Client, log logger.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Warnf("failed to close redis: %v", err)
		return
	}
	log.Info("✅ Redis closed cleanly")
}
