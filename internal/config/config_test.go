package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NODE_ROOT", "true")
	t.Setenv("MANIFEST_PATH", "model.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsRoot())
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "localhost:8080", cfg.Node.Addr)
	assert.Equal(t, 1, cfg.Planning.NumShards)
	assert.Equal(t, "contiguous", cfg.Planning.Strategy)
	assert.Equal(t, uint(5), cfg.Fanout.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Fanout.MaxElapsed)
	assert.Equal(t, BackendMemory, cfg.Storage.FinalStore)
	assert.False(t, cfg.UsesRedis())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}

func TestIsRoot(t *testing.T) {
	cfg := &Config{Node: NodeConfig{Addr: "a:8080", RootAddr: "a:8080"}}
	assert.True(t, cfg.IsRoot())

	cfg.Node.RootAddr = "b:8080"
	assert.False(t, cfg.IsRoot())

	cfg.Node.Root = true
	assert.True(t, cfg.IsRoot())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTPPort: 8080,
			GRPCPort: 9090,
			LogLevel: "info",
			Node:     NodeConfig{Addr: "a:8080", RootAddr: "root:8080"},
			Planning: PlanningConfig{NumShards: 1, Strategy: "contiguous"},
			Workers:  WorkerConfig{PoolSize: 1, QueueSize: 8},
			Storage:  StorageConfig{FinalStore: BackendMemory, EventBus: BackendMemory},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid non-root", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.HTTPPort = 0 }, wantErr: "invalid HTTP port"},
		{name: "no root address", mutate: func(c *Config) { c.Node.RootAddr = "" }, wantErr: "root address is required"},
		{name: "root without manifest", mutate: func(c *Config) { c.Node.Root = true }, wantErr: "manifest path"},
		{
			name: "root bad strategy",
			mutate: func(c *Config) {
				c.Node.Root = true
				c.Planning.ManifestPath = "m.yaml"
				c.Planning.Strategy = "random"
			},
			wantErr: "invalid partition strategy",
		},
		{
			name: "root zero shards",
			mutate: func(c *Config) {
				c.Node.Root = true
				c.Planning.ManifestPath = "m.yaml"
				c.Planning.NumShards = 0
			},
			wantErr: "at least 1",
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.EventBus = "kafka" }, wantErr: "unsupported event bus backend"},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Storage.FinalStore = BackendRedis
			},
			wantErr: "redis address",
		},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
