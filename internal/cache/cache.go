// Package cache реализует кэширование отчетов в Redis
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zstd"

	"envmonitor-service/internal/metrics"
	"envmonitor-service/internal/models"
)

const (
	// ReportKeyPrefix префикс для ключей отчетов
	ReportKeyPrefix = "report:"
	// DefaultTTL время жизни записи по умолчанию
	DefaultTTL = 5 * time.Minute
	// DefaultBucket ширина корзины "now" для ключа кэша
	DefaultBucket = time.Minute
)

// Options параметры кэша
type Options struct {
	Addr             string
	Password         string
	DB               int
	TTL              time.Duration
	Bucket           time.Duration
	CompressionLevel int
}

// RedisCache кэширует отчеты по ключу (устройство, селектор, корзина времени).
// Значения хранятся как JSON, сжатый zstd.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	bucket  time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewRedisCache создает новое подключение к Redis
func NewRedisCache(ctx context.Context, opts Options) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c, err := newCache(client, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

func newCache(client *redis.Client, opts Options) (*RedisCache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Bucket <= 0 {
		opts.Bucket = DefaultBucket
	}
	if opts.Bucket < time.Second {
		opts.Bucket = time.Second
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(opts.CompressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &RedisCache{
		client:  client,
		ttl:     opts.TTL,
		bucket:  opts.Bucket,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// encoderLevel переводит уровень 1..4 в уровень zstd
func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Key строит ключ отчета report:{len(device)}:{device}:{selector}:{bucket};
// все запросы внутри одной корзины времени делят запись.
// Длина устройства делает ключ однозначным при ':' в любой из частей.
func (r *RedisCache) Key(deviceID string, selector models.Selector, now time.Time) string {
	return fmt.Sprintf("%s%d:%s:%s:%d", ReportKeyPrefix, len(deviceID), deviceID, selector, now.Unix()/int64(r.bucket/time.Second))
}

// GetReport возвращает закэшированный отчет; ok=false при промахе
func (r *RedisCache) GetReport(ctx context.Context, deviceID string, selector models.Selector, now time.Time) (*models.Report, bool, error) {
	data, err := r.client.Get(ctx, r.Key(deviceID, selector, now)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheMisses.Inc()
		return nil, false, fmt.Errorf("failed to get report: %w", err)
	}

	raw, err := r.decoder.DecodeAll(data, nil)
	if err != nil {
		metrics.CacheMisses.Inc()
		return nil, false, fmt.Errorf("failed to decompress report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		metrics.CacheMisses.Inc()
		return nil, false, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	metrics.CacheHits.Inc()
	return &report, true, nil
}

// PutReport сохраняет отчет
func (r *RedisCache) PutReport(ctx context.Context, report *models.Report, now time.Time) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	compressed := r.encoder.EncodeAll(data, make([]byte, 0, len(data)/4))
	key := r.Key(report.DeviceID, report.Selector, now)
	if err := r.client.Set(ctx, key, compressed, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение и кодеки
func (r *RedisCache) Close() error {
	r.decoder.Close()
	if err := r.encoder.Close(); err != nil {
		r.client.Close()
		return err
	}
	return r.client.Close()
}
