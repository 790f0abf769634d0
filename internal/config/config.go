// Package config loads process configuration from the environment exactly
// once at startup; the result is immutable for the life of the process, per
// the no-global-mutable-state policy the rest of the engine follows.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TransportMode selects which bus transports a process uses for the data
// plane. The control plane always uses the reliable transport regardless of
// this setting.
type TransportMode string

const (
	TransportRedisOnly TransportMode = "redis_only"
	TransportZmqOnly    TransportMode = "zmq_only"
	TransportBoth       TransportMode = "both"
)

// Config is the full process configuration. Every field is read once by
// Load and never mutated afterward.
type Config struct {
	ShardID   string
	Transport TransportConfig
	Risk      RiskConfig
	Reconnect ReconnectConfig
	Shard     ShardConfig
	Discovery DiscoveryConfig
	Observer  ObserverConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	AdminHTTP AdminHTTPConfig
	Secrets   SecretsConfig
}

// TransportConfig configures the message bus.
type TransportConfig struct {
	Mode             TransportMode
	RedisURL         string
	RedisStreamURL   string
	LowLatencyBuffer int
	PriceStaleness   time.Duration
}

// RiskConfig configures the risk gate and its circuit breakers.
type RiskConfig struct {
	MinEdgePct              float64
	MaxPositionSize         float64
	MaxAssetExposure        float64
	MaxTotalExposure        float64
	MinLiquidity            float64
	VolatilityScaling       bool
	VolatilityThreshold     float64
	VolatilityScaleFactor   float64
	MaxPositionPerMarket    int64
	MaxTotalPosition        int64
	MaxDailyLossCents       int64
	MaxConsecutiveErrors    uint32
	CooldownDuration        time.Duration
	APIFailureThreshold     int
	APIRecoveryTimeout      time.Duration
	APISuccessThreshold     int
	DuplicateWindow         time.Duration
}

// ReconnectConfig configures §4.A's reconnecting subscription primitive.
type ReconnectConfig struct {
	BaseDelay              time.Duration
	MaxDelay               time.Duration
	JitterPct              float64
	MaxConsecutiveFailures int
	CircuitCooldown        time.Duration
}

// ShardConfig configures the shard runtime.
type ShardConfig struct {
	HeartbeatInterval time.Duration
	ShardTimeout      time.Duration
	EventDriven       bool
	FallbackTick      time.Duration
	MaxGames          int
}

// DiscoveryConfig configures the orchestrator's discovery/assignment loops.
type DiscoveryConfig struct {
	DiscoveryInterval    time.Duration
	ProviderCacheTTL     time.Duration
	MaxConcurrentStates  int
	VenueRequestsPerSec  float64
	ResyncDebounce       time.Duration
	HealthCheckInterval  time.Duration
	ZeroReportGrace      int
	AssignmentCircuit    AssignmentCircuitConfig

	EnableSports     bool
	EnableCrypto     bool
	EnableEconomics  bool
	EnablePolitics   bool
}

// AssignmentCircuitConfig configures the orchestrator's per-shard assignment
// circuit breaker.
type AssignmentCircuitConfig struct {
	FailureThreshold int
	SuccessThreshold int
	HalfOpenTimeout  time.Duration
}

// ObserverConfig configures the observer's persisted-log behavior.
type ObserverConfig struct {
	Mode           string // observer | bridge | disabled
	SQLitePath     string
	MaxLenPrices   int64
	MaxLenSignals  int64
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	ArchiveAge     time.Duration
}

// DatabaseConfig configures the Postgres-backed exposure sink.
type DatabaseConfig struct {
	DSN string
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string
	Format string
}

// AdminHTTPConfig configures the operator-facing HTTP surface.
type AdminHTTPConfig struct {
	Addr     string
	Username string
	Password string
}

// SecretsConfig configures venue-credential encryption at rest.
type SecretsConfig struct {
	EncryptionKey string
}

// Load reads configuration from the environment via viper's AutomaticEnv
// binding. A config.yaml in the working directory is merged in first if
// present, so local development can override defaults without exporting
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		ShardID: v.GetString("SHARD_ID"),
		Transport: TransportConfig{
			Mode:             TransportMode(v.GetString("TRANSPORT_MODE")),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisStreamURL:   v.GetString("REDIS_STREAM_URL"),
			LowLatencyBuffer: v.GetInt("LOW_LATENCY_BUFFER"),
			PriceStaleness:   time.Duration(v.GetInt("PRICE_STALENESS_SECS")) * time.Second,
		},
		Risk: RiskConfig{
			MinEdgePct:            v.GetFloat64("MIN_EDGE_PCT"),
			MaxPositionSize:       v.GetFloat64("MAX_POSITION_SIZE"),
			MaxAssetExposure:      v.GetFloat64("MAX_ASSET_EXPOSURE"),
			MaxTotalExposure:      v.GetFloat64("MAX_TOTAL_EXPOSURE"),
			MinLiquidity:          v.GetFloat64("MIN_LIQUIDITY"),
			VolatilityScaling:     v.GetBool("VOLATILITY_SCALING"),
			VolatilityThreshold:   v.GetFloat64("VOLATILITY_THRESHOLD"),
			VolatilityScaleFactor: v.GetFloat64("VOLATILITY_SCALE_FACTOR"),
			MaxPositionPerMarket:  v.GetInt64("MAX_POSITION_PER_MARKET"),
			MaxTotalPosition:      v.GetInt64("MAX_TOTAL_POSITION"),
			MaxDailyLossCents:     v.GetInt64("MAX_DAILY_LOSS_CENTS"),
			MaxConsecutiveErrors:  uint32(v.GetUint("MAX_CONSECUTIVE_ERRORS")),
			CooldownDuration:      secs(v, "RISK_COOLDOWN_SECS", time.Second),
			APIFailureThreshold:   v.GetInt("API_CIRCUIT_FAILURE_THRESHOLD"),
			APIRecoveryTimeout:    secs(v, "API_CIRCUIT_RECOVERY_SECS", time.Second),
			APISuccessThreshold:   v.GetInt("API_CIRCUIT_SUCCESS_THRESHOLD"),
			DuplicateWindow:       secs(v, "DUPLICATE_WINDOW_SECS", time.Second),
		},
		Reconnect: ReconnectConfig{
			BaseDelay:              secs(v, "REDIS_RECONNECT_BASE_MS", time.Millisecond),
			MaxDelay:               secs(v, "REDIS_RECONNECT_MAX_MS", time.Millisecond),
			JitterPct:              v.GetFloat64("REDIS_RECONNECT_JITTER_PCT"),
			MaxConsecutiveFailures: v.GetInt("REDIS_RECONNECT_MAX_FAILURES"),
			CircuitCooldown:        secs(v, "REDIS_RECONNECT_CIRCUIT_COOLDOWN_SECS", time.Second),
		},
		Shard: ShardConfig{
			HeartbeatInterval: secs(v, "HEARTBEAT_INTERVAL_SECS", time.Second),
			ShardTimeout:      secs(v, "SHARD_TIMEOUT_SECS", time.Second),
			EventDriven:       v.GetBool("SHARD_EVENT_DRIVEN"),
			FallbackTick:      secs(v, "SHARD_FALLBACK_TICK_SECS", time.Second),
			MaxGames:          v.GetInt("SHARD_MAX_GAMES"),
		},
		Discovery: DiscoveryConfig{
			DiscoveryInterval:   secs(v, "DISCOVERY_INTERVAL_SECS", time.Second),
			ProviderCacheTTL:    secs(v, "PROVIDER_CACHE_TTL_SECS", time.Second),
			MaxConcurrentStates: v.GetInt("MAX_CONCURRENT_EVENT_STATE_CALLS"),
			VenueRequestsPerSec: v.GetFloat64("VENUE_REQUESTS_PER_SEC"),
			ResyncDebounce:      secs(v, "RESYNC_DEBOUNCE_SECS", time.Second),
			HealthCheckInterval: secs(v, "HEALTH_CHECK_INTERVAL_SECS", time.Second),
			ZeroReportGrace:     v.GetInt("ZERO_REPORT_GRACE"),
			AssignmentCircuit: AssignmentCircuitConfig{
				FailureThreshold: v.GetInt("ASSIGNMENT_CIRCUIT_FAILURE_THRESHOLD"),
				SuccessThreshold: v.GetInt("ASSIGNMENT_CIRCUIT_SUCCESS_THRESHOLD"),
				HalfOpenTimeout:  secs(v, "ASSIGNMENT_CIRCUIT_HALF_OPEN_SECS", time.Second),
			},
			EnableSports:    v.GetBool("ENABLE_SPORTS"),
			EnableCrypto:    v.GetBool("ENABLE_CRYPTO"),
			EnableEconomics: v.GetBool("ENABLE_ECONOMICS"),
			EnablePolitics:  v.GetBool("ENABLE_POLITICS"),
		},
		Observer: ObserverConfig{
			Mode:          v.GetString("OBSERVER_MODE"),
			SQLitePath:    v.GetString("OBSERVER_SQLITE_PATH"),
			MaxLenPrices:  v.GetInt64("OBSERVER_MAXLEN_PRICES"),
			MaxLenSignals: v.GetInt64("OBSERVER_MAXLEN_SIGNALS"),
			S3Bucket:      v.GetString("OBSERVER_S3_BUCKET"),
			S3Prefix:      v.GetString("OBSERVER_S3_PREFIX"),
			S3Region:      v.GetString("OBSERVER_S3_REGION"),
			ArchiveAge:    secs(v, "OBSERVER_ARCHIVE_AGE_SECS", time.Second),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("DATABASE_DSN"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		AdminHTTP: AdminHTTPConfig{
			Addr:     v.GetString("ADMIN_HTTP_ADDR"),
			Username: v.GetString("ADMIN_HTTP_USERNAME"),
			Password: v.GetString("ADMIN_HTTP_PASSWORD"),
		},
		Secrets: SecretsConfig{
			EncryptionKey: v.GetString("ENCRYPTION_KEY"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Transport.Mode {
	case TransportRedisOnly, TransportZmqOnly, TransportBoth:
	default:
		return fmt.Errorf("invalid TRANSPORT_MODE %q", cfg.Transport.Mode)
	}
	if cfg.Secrets.EncryptionKey != "" && len(cfg.Secrets.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.Risk.MinEdgePct <= 0 {
		return fmt.Errorf("MIN_EDGE_PCT must be positive")
	}
	return nil
}

// secs reads an integer config value and scales it by unit, so defaults and
// environment overrides can both be plain integers (e.g. HEARTBEAT_INTERVAL_SECS=10)
// without viper's GetDuration numeric-nanosecond ambiguity.
func secs(v *viper.Viper, key string, unit time.Duration) time.Duration {
	return time.Duration(v.GetInt(key)) * unit
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TRANSPORT_MODE", string(TransportBoth))
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("REDIS_STREAM_URL", "redis://localhost:6379/0")
	v.SetDefault("LOW_LATENCY_BUFFER", 4096)
	v.SetDefault("PRICE_STALENESS_SECS", 10)

	v.SetDefault("MIN_EDGE_PCT", 2.0)
	v.SetDefault("MAX_POSITION_SIZE", 500.0)
	v.SetDefault("MAX_ASSET_EXPOSURE", 5000.0)
	v.SetDefault("MAX_TOTAL_EXPOSURE", 20000.0)
	v.SetDefault("MIN_LIQUIDITY", 0.0)
	v.SetDefault("VOLATILITY_SCALING", true)
	v.SetDefault("VOLATILITY_THRESHOLD", 1.5)
	v.SetDefault("VOLATILITY_SCALE_FACTOR", 0.7)
	v.SetDefault("MAX_POSITION_PER_MARKET", 50000)
	v.SetDefault("MAX_TOTAL_POSITION", 100000)
	v.SetDefault("MAX_DAILY_LOSS_CENTS", 50000)
	v.SetDefault("MAX_CONSECUTIVE_ERRORS", 5)
	v.SetDefault("RISK_COOLDOWN_SECS", 300)
	v.SetDefault("API_CIRCUIT_FAILURE_THRESHOLD", 3)
	v.SetDefault("API_CIRCUIT_RECOVERY_SECS", 60)
	v.SetDefault("API_CIRCUIT_SUCCESS_THRESHOLD", 2)
	v.SetDefault("DUPLICATE_WINDOW_SECS", 60)

	v.SetDefault("REDIS_RECONNECT_BASE_MS", 1000)
	v.SetDefault("REDIS_RECONNECT_MAX_MS", 60000)
	v.SetDefault("REDIS_RECONNECT_JITTER_PCT", 0.1)
	v.SetDefault("REDIS_RECONNECT_MAX_FAILURES", 10)
	v.SetDefault("REDIS_RECONNECT_CIRCUIT_COOLDOWN_SECS", 60)

	v.SetDefault("HEARTBEAT_INTERVAL_SECS", 10)
	v.SetDefault("SHARD_TIMEOUT_SECS", 30)
	v.SetDefault("SHARD_EVENT_DRIVEN", true)
	v.SetDefault("SHARD_FALLBACK_TICK_SECS", 5)
	v.SetDefault("SHARD_MAX_GAMES", 200)

	v.SetDefault("DISCOVERY_INTERVAL_SECS", 60)
	v.SetDefault("PROVIDER_CACHE_TTL_SECS", 300)
	v.SetDefault("MAX_CONCURRENT_EVENT_STATE_CALLS", 3)
	v.SetDefault("RESYNC_DEBOUNCE_SECS", 2)
	v.SetDefault("HEALTH_CHECK_INTERVAL_SECS", 10)
	v.SetDefault("ZERO_REPORT_GRACE", 3)
	v.SetDefault("ASSIGNMENT_CIRCUIT_FAILURE_THRESHOLD", 5)
	v.SetDefault("ASSIGNMENT_CIRCUIT_SUCCESS_THRESHOLD", 2)
	v.SetDefault("ASSIGNMENT_CIRCUIT_HALF_OPEN_SECS", 120)
	v.SetDefault("ENABLE_SPORTS", true)
	v.SetDefault("ENABLE_CRYPTO", true)
	v.SetDefault("ENABLE_ECONOMICS", true)
	v.SetDefault("ENABLE_POLITICS", true)

	v.SetDefault("OBSERVER_MODE", "observer")
	v.SetDefault("OBSERVER_SQLITE_PATH", "./observer.db")
	v.SetDefault("OBSERVER_MAXLEN_PRICES", 50000)
	v.SetDefault("OBSERVER_MAXLEN_SIGNALS", 5000)
	v.SetDefault("OBSERVER_ARCHIVE_AGE_SECS", 86400)
	v.SetDefault("OBSERVER_S3_REGION", "us-east-1")

	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ADMIN_HTTP_ADDR", ":8080")
}
