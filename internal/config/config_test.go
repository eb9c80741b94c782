package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendRedis, cfg.Source.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, "envmonitor/+/readings", cfg.MQTT.Topic)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[source]
backend = "badger"
badger_path = "/tmp/readings"

[cache]
enabled = false
ttl = "30s"

[refresh]
interval = "1m"
devices = ["greenhouse-1", "greenhouse-2"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, BackendBadger, cfg.Source.Backend)
	assert.Equal(t, "/tmp/readings", cfg.Source.BadgerPath)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL.Duration)
	assert.Equal(t, time.Minute, cfg.Refresh.Interval.Duration)
	assert.Equal(t, []string{"greenhouse-1", "greenhouse-2"}, cfg.Refresh.Devices)
	// untouched values keep their defaults
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 8080\n"), 0o600))

	err := DefaultConfig().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("SOURCE_BACKEND", "none")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("REFRESH_INTERVAL", "2m")
	t.Setenv("REFRESH_DEVICES", " a, b ,,c ")
	t.Setenv("WORKER_COUNT", "not-a-number")

	cfg := DefaultConfig()
	workers := cfg.Refresh.Workers
	cfg.ApplyEnv()

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, BackendNone, cfg.Source.Backend)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.Interval.Duration)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Refresh.Devices)
	assert.Equal(t, workers, cfg.Refresh.Workers)
}

func TestLoadReadsConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	// environment wins over the file
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"unknown backend", func(c *Config) { c.Source.Backend = "postgres" }},
		{"redis without addr", func(c *Config) { c.Source.RedisAddr = "" }},
		{"cache without addr", func(c *Config) { c.Cache.RedisAddr = "" }},
		{"compression level", func(c *Config) { c.Cache.CompressionLevel = 7 }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.BrokerURL = "" }},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }},
		{"bad location", func(c *Config) { c.Generator.Location = "Mars/Olympus" }},
		{"zero refresh interval", func(c *Config) { c.Refresh.Interval.Duration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
