package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"envmonitor-service/internal/models"
)

const (
	// ReadingsKeyPrefix префикс хэша показаний устройства
	ReadingsKeyPrefix = "readings:"
	// DevicesKey множество известных устройств
	DevicesKey = "devices"
)

// RedisOptions параметры подключения
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisSource хранит показания в Redis: HASH readings:{device} (ключ -> JSON) и SET devices
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource создает подключение и проверяет его
func NewRedisSource(ctx context.Context, opts RedisOptions) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, redisError("connect to redis", err)
	}

	return &RedisSource{client: client}, nil
}

// NewRedisSourceFromClient оборачивает готовый клиент
func NewRedisSourceFromClient(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

// Readings реализует ReadingSource.Readings
func (r *RedisSource) Readings(ctx context.Context, deviceID string) (map[string]models.RawReading, error) {
	data, err := r.client.HGetAll(ctx, ReadingsKeyPrefix+deviceID).Result()
	if err != nil {
		return nil, redisError("read readings", err)
	}

	readings := make(map[string]models.RawReading, len(data))
	for key, value := range data {
		if reading, ok := decodeReading([]byte(value)); ok {
			readings[key] = reading
		}
	}
	return readings, nil
}

// Devices реализует ReadingSource.Devices
func (r *RedisSource) Devices(ctx context.Context) ([]string, error) {
	devices, err := r.client.SMembers(ctx, DevicesKey).Result()
	if err != nil {
		return nil, redisError("list devices", err)
	}
	sort.Strings(devices)
	return devices, nil
}

// Append реализует Writer.Append
func (r *RedisSource) Append(ctx context.Context, deviceID, key string, reading models.RawReading) error {
	data, err := EncodeReading(reading)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, ReadingsKeyPrefix+deviceID, key, data)
	pipe.SAdd(ctx, DevicesKey, deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return redisError(fmt.Sprintf("append reading for %s", deviceID), err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func (r *RedisSource) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return redisError("ping redis", err)
	}
	return nil
}

// Close закрывает соединение
func (r *RedisSource) Close() error {
	return r.client.Close()
}

// redisError переводит в ErrUnavailable только сбои соединения.
// Ответы сервера (WRONGTYPE, NOAUTH, ...) возвращаются как обычные ошибки.
func redisError(op string, err error) error {
	if isConnectionError(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	var reply redis.Error
	if errors.As(err, &reply) {
		return false
	}

	var netErr net.Error
	switch {
	case errors.Is(err, redis.ErrClosed), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.As(err, &netErr):
		return true
	}
	// ErrPoolTimeout не экспортируется пакетом redis
	return err.Error() == "redis: connection pool timeout"
}
