package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage and event bus backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for a periphery node
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PERIPHERY_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PERIPHERY_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Node identity and root election
	Node NodeConfig

	// Model planning, root only
	Planning PlanningConfig

	// Worker configuration
	Workers WorkerConfig

	// Fanout retries
	Fanout FanoutConfig

	// Backends
	Storage StorageConfig

	// Redis configuration
	Redis RedisConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// NodeConfig identifies the node inside the cluster
type NodeConfig struct {
	Addr string `env:"NODE_ADDR" envDefault:"localhost:8080"`
	Root bool   `env:"NODE_ROOT" envDefault:"false"`
	// RootAddr is the HTTP address of the root node
	RootAddr string `env:"ROOT_ADDR"`
	// RootGRPCAddr switches root probing to grpc.health.v1
	RootGRPCAddr string `env:"ROOT_GRPC_ADDR"`
}

// PlanningConfig describes how the root shards the model
type PlanningConfig struct {
	ManifestPath string  `env:"MANIFEST_PATH"`
	NumShards    int     `env:"NUM_SHARDS" envDefault:"1"`
	Strategy     string  `env:"PARTITION_STRATEGY" envDefault:"contiguous"`
	Tolerance    float64 `env:"PARTITION_TOLERANCE" envDefault:"0.1"`
	Format       string  `env:"SHARD_FORMAT" envDefault:"reference"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueSize           int           `env:"TASK_QUEUE_SIZE" envDefault:"1024"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// FanoutConfig bounds transport retries when forwarding outputs
type FanoutConfig struct {
	MaxRetries      uint          `env:"FANOUT_MAX_RETRIES" envDefault:"5"`
	InitialInterval time.Duration `env:"FANOUT_INITIAL_INTERVAL" envDefault:"100ms"`
	MaxInterval     time.Duration `env:"FANOUT_MAX_INTERVAL" envDefault:"2s"`
	MaxElapsed      time.Duration `env:"FANOUT_MAX_ELAPSED" envDefault:"15s"`
}

// StorageConfig selects the backends of the node
type StorageConfig struct {
	FinalStore       string        `env:"FINAL_STORE" envDefault:"memory"`
	EventBus         string        `env:"EVENT_BUS" envDefault:"memory"`
	FinalTTL         time.Duration `env:"FINAL_TTL" envDefault:"24h"`
	EventStreamLen   int64         `env:"EVENT_STREAM_MAXLEN" envDefault:"10000"`
	AssignmentDBPath string        `env:"ASSIGNMENT_DB_PATH"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ProbeInterval    time.Duration `env:"TIMEOUT_PROBE_INTERVAL" envDefault:"1s"`
	TransportTimeout time.Duration `env:"TIMEOUT_TRANSPORT" envDefault:"10s"`
	FormationTimeout time.Duration `env:"TIMEOUT_FORMATION" envDefault:"0s"`
	ShutdownTimeout  time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// IsRoot reports whether this node acts as root: either NODE_ROOT is set or
// its own address is the root address.
func (c *Config) IsRoot() bool {
	return c.Node.Root || (c.Node.RootAddr != "" && c.Node.RootAddr == c.Node.Addr)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Node.Addr == "" {
		return fmt.Errorf("node address is required")
	}
	if !c.IsRoot() && c.Node.RootAddr == "" {
		return fmt.Errorf("root address is required on non-root nodes")
	}

	if c.IsRoot() {
		if c.Planning.ManifestPath == "" {
			return fmt.Errorf("manifest path is required on the root")
		}
		if c.Planning.NumShards < 1 {
			return fmt.Errorf("number of shards must be at least 1")
		}
		if c.Planning.Strategy != "contiguous" && c.Planning.Strategy != "structural" {
			return fmt.Errorf("invalid partition strategy: %s (must be contiguous or structural)", c.Planning.Strategy)
		}
		if c.Planning.Tolerance < 0 || c.Planning.Tolerance >= 1 {
			return fmt.Errorf("partition tolerance must be in [0, 1): %v", c.Planning.Tolerance)
		}
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("task queue size must be at least 1")
	}

	for name, backend := range map[string]string{"final store": c.Storage.FinalStore, "event bus": c.Storage.EventBus} {
		if backend != BackendMemory && backend != BackendRedis {
			return fmt.Errorf("unsupported %s backend: %s (must be memory or redis)", name, backend)
		}
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Storage.FinalStore == BackendRedis || c.Storage.EventBus == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
