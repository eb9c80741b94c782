// Package config загружает конфигурацию сервиса: значения по умолчанию -> TOML-файл -> переменные окружения
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Поддерживаемые хранилища показаний
const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Duration длительность, записываемая в TOML строкой ("15s")
type Duration struct {
	time.Duration
}

// UnmarshalText разбирает строку длительности
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText сериализует длительность
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config содержит конфигурацию сервиса
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Source    SourceConfig    `toml:"source"`
	Cache     CacheConfig     `toml:"cache"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Generator GeneratorConfig `toml:"generator"`
	Refresh   RefreshConfig   `toml:"refresh"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig параметры HTTP сервера
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	IdleTimeout  Duration `toml:"idle_timeout"`
}

// SourceConfig хранилище показаний
type SourceConfig struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	BadgerPath    string `toml:"badger_path"`
	ConnectRetry  int    `toml:"connect_retry"`
}

// CacheConfig кэш отчетов
type CacheConfig struct {
	Enabled          bool     `toml:"enabled"`
	RedisAddr        string   `toml:"redis_addr"`
	RedisPassword    string   `toml:"redis_password"`
	RedisDB          int      `toml:"redis_db"`
	TTL              Duration `toml:"ttl"`
	Bucket           Duration `toml:"bucket"`
	CompressionLevel int      `toml:"compression_level"`
}

// MQTTConfig сборщик показаний с устройств
type MQTTConfig struct {
	Enabled   bool   `toml:"enabled"`
	BrokerURL string `toml:"broker_url"`
	Topic     string `toml:"topic"`
	ClientID  string `toml:"client_id"`
	QoS       int    `toml:"qos"`
}

// GeneratorConfig синтетический генератор.
// Seed = 0 означает недетерминированный шум.
type GeneratorConfig struct {
	Location string `toml:"location"`
	Seed     uint64 `toml:"seed"`
}

// RefreshConfig периодическое обновление метрик
type RefreshConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Selector string   `toml:"selector"`
	Devices  []string `toml:"devices"`
	Workers  int      `toml:"workers"`
}

// LogConfig журналирование
type LogConfig struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{15 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
		},
		Source: SourceConfig{
			Backend:      BackendRedis,
			RedisAddr:    "localhost:6379",
			BadgerPath:   "./data",
			ConnectRetry: 5,
		},
		Cache: CacheConfig{
			Enabled:          true,
			RedisAddr:        "localhost:6379",
			TTL:              Duration{5 * time.Minute},
			Bucket:           Duration{time.Minute},
			CompressionLevel: 2,
		},
		MQTT: MQTTConfig{
			BrokerURL: "mqtt://localhost:1883",
			Topic:     "envmonitor/+/readings",
			ClientID:  "envmonitor-collector",
			QoS:       1,
		},
		Generator: GeneratorConfig{
			Location: "UTC",
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: Duration{30 * time.Second},
			Selector: "last_hour",
			Workers:  runtime.NumCPU(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load собирает конфигурацию: значения по умолчанию, файл из CONFIG_FILE, окружение
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile накладывает значения из TOML-файла
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return nil
}

// ApplyEnv накладывает переменные окружения
func (c *Config) ApplyEnv() {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)

	c.Source.Backend = getEnv("SOURCE_BACKEND", c.Source.Backend)
	c.Source.RedisAddr = getEnv("REDIS_ADDR", c.Source.RedisAddr)
	c.Source.RedisPassword = getEnv("REDIS_PASSWORD", c.Source.RedisPassword)
	c.Source.RedisDB = getEnvInt("REDIS_DB", c.Source.RedisDB)
	c.Source.BadgerPath = getEnv("BADGER_PATH", c.Source.BadgerPath)

	c.Cache.Enabled = getEnvBool("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.RedisAddr = getEnv("CACHE_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.TTL.Duration = getEnvDuration("CACHE_TTL", c.Cache.TTL.Duration)
	c.Cache.Bucket.Duration = getEnvDuration("CACHE_BUCKET", c.Cache.Bucket.Duration)
	c.Cache.CompressionLevel = getEnvInt("CACHE_COMPRESSION_LEVEL", c.Cache.CompressionLevel)

	c.MQTT.Enabled = getEnvBool("MQTT_ENABLED", c.MQTT.Enabled)
	c.MQTT.BrokerURL = getEnv("MQTT_BROKER_URL", c.MQTT.BrokerURL)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)

	c.Generator.Location = getEnv("GENERATOR_LOCATION", c.Generator.Location)

	c.Refresh.Enabled = getEnvBool("REFRESH_ENABLED", c.Refresh.Enabled)
	c.Refresh.Interval.Duration = getEnvDuration("REFRESH_INTERVAL", c.Refresh.Interval.Duration)
	c.Refresh.Workers = getEnvInt("WORKER_COUNT", c.Refresh.Workers)
	if devices := os.Getenv("REFRESH_DEVICES"); devices != "" {
		c.Refresh.Devices = splitList(devices)
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.NoColor = getEnvBool("NO_COLOR", c.Log.NoColor)
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}

	switch c.Source.Backend {
	case BackendRedis:
		if c.Source.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	case BackendBadger, BackendNone:
	default:
		return fmt.Errorf("unknown source backend %q", c.Source.Backend)
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache redis address is required when the cache is enabled")
	}
	if c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" || c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt broker url and topic are required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2")
		}
	}

	if _, err := time.LoadLocation(c.Generator.Location); err != nil {
		return fmt.Errorf("invalid generator location: %w", err)
	}

	if c.Refresh.Enabled && c.Refresh.Interval.Duration <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}

	return nil
}

// getEnv получает переменную окружения со значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
