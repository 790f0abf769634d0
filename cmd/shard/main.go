package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbengine/internal/adminhttp"
	"arbengine/internal/config"
	"arbengine/internal/exposure"
	"arbengine/internal/logging"
	"arbengine/internal/models"
	"arbengine/internal/pricecache"
	"arbengine/internal/shard"
	"arbengine/internal/transport"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLog, err := logging.New(cfg.Logging, "shard")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLog.Sync()

	exposureDB, err := exposure.Open(cfg.Database.DSN)
	if err != nil {
		zapLog.Fatal("failed to open exposure database", zap.Error(err))
	}
	defer exposureDB.Close()
	exposureStore := exposure.NewStore(exposureDB)

	var redisClient *redis.Client
	if cfg.Transport.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Transport.RedisURL)
		if err != nil {
			zapLog.Fatal("invalid redis url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	bus := transport.NewComposite(cfg.Transport.Mode, cfg.ShardID, redisClient, zapLog)
	defer bus.Close()

	shardType := models.ShardType(os.Getenv("SHARD_TYPE"))
	if shardType == "" {
		shardType = models.ShardSports
	}

	runtime := shard.New(shard.Config{
		ShardID:   cfg.ShardID,
		ShardType: shardType,
		Shard:     cfg.Shard,
		Risk:      cfg.Risk,
		Bus:       bus,
		Prices:    pricecache.New(cfg.Transport.PriceStaleness),
		Exposure:  exposureStore,
		Log:       zapLog,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- runtime.Run(ctx)
	}()

	var adminSrv *http.Server
	if cfg.AdminHTTP.Addr != "" {
		router := adminhttp.NewRouter(adminhttp.Dependencies{
			AdminUsername: cfg.AdminHTTP.Username,
			AdminPassword: cfg.AdminHTTP.Password,
			Log:           zapLog,
		})
		adminSrv = &http.Server{Addr: cfg.AdminHTTP.Addr, Handler: router}
		go func() {
			zapLog.Info("admin http listening", zap.String("addr", cfg.AdminHTTP.Addr))
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zapLog.Warn("admin http server exited", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		zapLog.Info("shutdown signal received")
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			zapLog.Error("shard runtime exited unexpectedly", zap.Error(err))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			zapLog.Warn("admin http shutdown error", zap.Error(err))
		}
	}

	select {
	case <-runErr:
	case <-time.After(30 * time.Second):
		zapLog.Warn("shard runtime did not shut down within timeout")
	}

	zapLog.Info("shard exited")
}
