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
	"arbengine/internal/discovery"
	"arbengine/internal/logging"
	"arbengine/internal/models"
	"arbengine/internal/orchestrator"
	"arbengine/internal/transport"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// noopProvider stands in for a family's live feed until a real venue
// adapter is wired in; it reports no events rather than failing discovery
// outright, so an orchestrator can run with a subset of families
// configured.
type noopProvider struct {
	marketTypes []models.MarketType
}

func (noopProvider) GetLiveEvents(ctx context.Context) ([]models.EventInfo, error) { return nil, nil }
func (noopProvider) GetScheduledEvents(ctx context.Context, days int) ([]models.EventInfo, error) {
	return nil, nil
}
func (noopProvider) GetEventState(ctx context.Context, eventID string) (models.EventState, error) {
	return models.EventState{}, nil
}
func (p noopProvider) SupportedMarketTypes() []models.MarketType { return p.marketTypes }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLog, err := logging.New(cfg.Logging, "orchestrator")
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
	bus := transport.NewComposite(cfg.Transport.Mode, "orchestrator", redisClient, zapLog)
	defer bus.Close()

	ledger, err := orchestrator.OpenLedgerStore(cfg.Database.DSN)
	if err != nil {
		zapLog.Fatal("failed to open ledger store", zap.Error(err))
	}
	defer ledger.Close()

	registry := orchestrator.NewRegistry(cfg.Discovery, bus, zapLog)

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

	if cfg.Discovery.EnableSports {
		resolver := orchestrator.NewSportsVenueResolver(bus, cfg.Discovery.ProviderCacheTTL, zapLog)
		spawn(func() {
			if err := resolver.Start(ctx); err != nil && ctx.Err() == nil {
				zapLog.Warn("sports venue resolver subscribe failed", zap.Error(err))
			}
		})
		provider := discovery.NewCachedProvider(noopProvider{marketTypes: []models.MarketType{{Kind: models.MarketSport}}}, cfg.Discovery.ProviderCacheTTL, cfg.Discovery.MaxConcurrentStates)
		if cfg.Discovery.VenueRequestsPerSec > 0 {
			provider = provider.WithRateLimit(cfg.Discovery.VenueRequestsPerSec)
		}
		manager := orchestrator.NewManager(models.ShardSports, provider, resolver, registry, bus, cfg.Discovery, zapLog)
		registry.SetReassigner(manager)
		spawn(func() { manager.RunDiscoveryLoop(ctx) })
		spawn(func() { manager.RunResyncLoop(ctx) })
	}

	if cfg.Discovery.EnableCrypto || cfg.Discovery.EnableEconomics || cfg.Discovery.EnablePolitics {
		var kinds []models.MarketType
		if cfg.Discovery.EnableCrypto {
			kinds = append(kinds, models.MarketType{Kind: models.MarketCrypto})
		}
		if cfg.Discovery.EnableEconomics {
			kinds = append(kinds, models.MarketType{Kind: models.MarketEconomics})
		}
		if cfg.Discovery.EnablePolitics {
			kinds = append(kinds, models.MarketType{Kind: models.MarketPolitics})
		}
		provider := discovery.NewCachedProvider(noopProvider{marketTypes: kinds}, cfg.Discovery.ProviderCacheTTL, cfg.Discovery.MaxConcurrentStates)
		if cfg.Discovery.VenueRequestsPerSec > 0 {
			provider = provider.WithRateLimit(cfg.Discovery.VenueRequestsPerSec)
		}
		manager := orchestrator.NewManager(models.ShardNonSports, provider, nil, registry, bus, cfg.Discovery, zapLog)
		if !cfg.Discovery.EnableSports {
			registry.SetReassigner(manager)
		}
		spawn(func() { manager.RunDiscoveryLoop(ctx) })
		spawn(func() { manager.RunResyncLoop(ctx) })
	}

	spawn(func() { registry.RunHealthLoop(ctx, cfg.Shard.ShardTimeout) })
	spawn(func() { heartbeatListener(ctx, bus, registry, zapLog) })

	var adminSrv *http.Server
	if cfg.AdminHTTP.Addr != "" {
		router := adminhttp.NewRouter(adminhttp.Dependencies{
			Registry:      registry,
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
	zapLog.Info("orchestrator exited")
}

// heartbeatListener subscribes to every shard's heartbeat topic and feeds
// the registry; this is the control-plane side of §4.G's heartbeatLoop.
func heartbeatListener(ctx context.Context, bus *transport.Composite, registry *orchestrator.Registry, log *zap.Logger) {
	err := bus.Subscribe(ctx, "shard:", func(env models.BusEnvelope) {
		var hb models.Heartbeat
		if err := wireJSON.Unmarshal(env.Payload, &hb); err != nil {
			return
		}
		registry.HandleHeartbeat(ctx, hb)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("heartbeat listener subscribe failed", zap.Error(err))
	}
}
