package domain

import (
	"time"
)

// Config holds the complete beam engine configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Engine tunables (attribution window, fraud weights)
	Engine EngineConfig `json:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// EngineConfig holds attribution and fraud tunables. The upstream system
// never pinned these values down, so they are configuration rather than
// constants.
type EngineConfig struct {
	// AttributionLookback bounds how far back the resolver searches for a
	// matching click.
	AttributionLookback time.Duration `json:"attributionLookback"`

	// RuleCacheTTL bounds how long catalog reads may serve a cached rule.
	RuleCacheTTL time.Duration `json:"ruleCacheTTL"`

	Fraud FraudConfig `json:"fraud"`
}

// FraudConfig holds the scorer's thresholds and penalty weights.
type FraudConfig struct {
	// MinClickToSale is the shortest plausible click-to-purchase interval.
	MinClickToSale  time.Duration `json:"minClickToSale"`
	VelocityPenalty int           `json:"velocityPenalty"`

	// DuplicateCustomerWindow bounds the lookback for the same customer
	// identity appearing across resellers.
	DuplicateCustomerWindow  time.Duration `json:"duplicateCustomerWindow"`
	DuplicateCustomerPenalty int           `json:"duplicateCustomerPenalty"`

	// BurstThreshold is the max sales per reseller per day before the
	// burst-volume penalty applies.
	BurstThreshold int `json:"burstThreshold"`
	BurstPenalty   int `json:"burstPenalty"`

	// UnattributedPenalty applies when a sale has no matching click.
	UnattributedPenalty int `json:"unattributedPenalty"`

	// SuspicionThreshold is the score above which a commission is flagged
	// as suspicious (advisory only, never an automatic rejection).
	SuspicionThreshold int `json:"suspicionThreshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultEngineConfig returns the documented engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AttributionLookback: 30 * 24 * time.Hour,
		RuleCacheTTL:        5 * time.Minute,
		Fraud: FraudConfig{
			MinClickToSale:           2 * time.Second,
			VelocityPenalty:          75,
			DuplicateCustomerWindow:  24 * time.Hour,
			DuplicateCustomerPenalty: 40,
			BurstThreshold:           20,
			BurstPenalty:             30,
			UnattributedPenalty:      10,
			SuspicionThreshold:       70,
		},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./beam.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "beam",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "beam",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
