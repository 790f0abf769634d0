package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"arbengine/internal/adminhttp"
	"arbengine/internal/config"
	"arbengine/internal/logging"
	"arbengine/internal/observer"
	"arbengine/internal/secrets"
	"arbengine/internal/transport"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLog, err := logging.New(cfg.Logging, "observer")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLog.Sync()

	var redisClient *redis.Client
	if cfg.Transport.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Transport.RedisURL)
		if err != nil {
			zapLog.Fatal("invalid redis url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	bus := transport.NewComposite(cfg.Transport.Mode, "observer", redisClient, zapLog)
	defer bus.Close()

	var persisted *transport.Persisted
	if redisClient != nil {
		persisted = transport.NewPersisted(redisClient, cfg.Observer.MaxLenPrices, zapLog)
	}

	store, err := observer.OpenStore(cfg.Observer.SQLitePath)
	if err != nil {
		zapLog.Fatal("failed to open observer store", zap.Error(err))
	}
	defer store.Close()

	mode := observer.Mode(cfg.Observer.Mode)
	if mode == "" {
		mode = observer.ModeObserver
	}
	obs := observer.New(mode, bus, persisted, store, cfg.Observer, zapLog)

	auditLogger := observer.NewAuditLogger(bus, persisted, store, cfg.Observer.MaxLenSignals, zapLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() {
		if err := obs.Run(ctx); err != nil && ctx.Err() == nil {
			zapLog.Error("observer run exited unexpectedly", zap.Error(err))
		}
	})
	spawn(func() { obs.RunHeartbeat(ctx, 10*time.Second) })
	spawn(func() {
		if err := auditLogger.Run(ctx); err != nil && ctx.Err() == nil {
			zapLog.Error("audit logger run exited unexpectedly", zap.Error(err))
		}
	})

	if cfg.Observer.S3Bucket != "" {
		archiver, err := observer.NewArchiver(ctx, cfg.Observer.S3Region, cfg.Observer.S3Bucket, cfg.Observer.S3Prefix, store, zapLog)
		if err != nil {
			zapLog.Error("failed to start archiver, continuing without cold storage", zap.Error(err))
		} else {
			archiveAge := cfg.Observer.ArchiveAge
			if archiveAge <= 0 {
				archiveAge = 24 * time.Hour
			}
			for _, stream := range []string{"stream:prices", "stream:signals", "stream:audit", "stream:events"} {
				s := stream
				spawn(func() { archiver.RunPeriodic(ctx, s, archiveAge, time.Hour) })
			}
		}
	}

	var secretsStore *secrets.Store
	if cfg.Secrets.EncryptionKey != "" {
		secretsStore, err = secrets.Open(cfg.Observer.SQLitePath+".secrets", []byte(cfg.Secrets.EncryptionKey))
		if err != nil {
			zapLog.Error("failed to open secrets store", zap.Error(err))
		} else {
			defer secretsStore.Close()
		}
	}

	var adminSrv *http.Server
	if cfg.AdminHTTP.Addr != "" {
		router := adminhttp.NewRouter(adminhttp.Dependencies{
			AdminUsername: cfg.AdminHTTP.Username,
			AdminPassword: cfg.AdminHTTP.Password,
			Log:           zapLog,
		})
		adminSrv = &http.Server{Addr: cfg.AdminHTTP.Addr, Handler: router}
		spawn(func() {
			zapLog.Info("admin http listening", zap.String("addr", cfg.AdminHTTP.Addr))
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zapLog.Warn("admin http server exited", zap.Error(err))
			}
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLog.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			zapLog.Warn("admin http shutdown error", zap.Error(err))
		}
	}

	wg.Wait()
	zapLog.Info("observer exited")
}
