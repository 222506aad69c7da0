package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"roundtable/internal/api"
	"roundtable/internal/config"
	"roundtable/internal/directory"
	"roundtable/internal/mylog"
	"roundtable/internal/redis"
	"roundtable/internal/service/ai"
	"roundtable/internal/service/round"
	"roundtable/internal/storage"
	"roundtable/internal/worker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ROUNDTABLE_CONFIG"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := mylog.NewLogger(cfg.Log.Level, cfg.Log.Handler)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbType := cfg.BasicConfig.Database
	logger.Info("opening database", "driver", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return errors.Wrap(err, "migrate database")
	}
	roundLog := storage.NewRoundLog(db, logger)
	roundLog.StartPruner(ctx,
		time.Duration(cfg.BasicConfig.RoundLogInterval)*time.Minute,
		time.Duration(cfg.BasicConfig.RoundLogTTL)*time.Hour)

	var cache *redis.Client
	if cfg.RedisEnabled() {
		cache, err = redis.NewRedisClient(cfg)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer cache.Close()
		logger.Info("cluster table lock enabled", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	}

	name, providerCfg := cfg.ActiveProvider()
	provider, err := ai.NewProvider(ctx, name, providerCfg)
	switch {
	case errors.Is(err, ai.ErrNoCredential):
		// requests fail with a configuration error until a key is set
		logger.Warn("no provider credential configured", "provider", name)
		provider = nil
	case err != nil:
		return errors.Wrapf(err, "init provider %s", name)
	default:
		logger.Info("provider ready", "provider", name, "model", providerCfg.Model)
	}

	rounds := worker.NewManager(round.NewService(provider, logger), worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Second,
	}, cache, logger)
	defer rounds.Close()

	appTitle := cfg.Providers[config.DefaultProvider].AppTitle
	handlers := api.NewHandler(directory.MustDefault(), rounds, roundLog, appTitle, logger)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	logger.Info("roundtable listening", "addr", addr)
	return router.Run(addr)
}
