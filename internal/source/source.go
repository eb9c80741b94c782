// Package source реализует внешние хранилища сырых показаний устройств
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"envmonitor-service/internal/metrics"
	"envmonitor-service/internal/models"
)

var (
	// ErrUnavailable хранилище недоступно; вызывающий переходит на синтетические данные
	ErrUnavailable = errors.New("reading source unavailable")
	// ErrNotWritable хранилище не принимает запись
	ErrNotWritable = errors.New("reading source is read-only")
)

// ReadingSource хранилище показаний: устройство -> ключ показания -> запись
type ReadingSource interface {
	// Readings возвращает все записи устройства; ключи непрозрачны
	Readings(ctx context.Context, deviceID string) (map[string]models.RawReading, error)
	// Devices возвращает идентификаторы устройств, от которых есть данные
	Devices(ctx context.Context) ([]string, error)
	// Ping проверяет доступность
	Ping(ctx context.Context) error
	Close() error
}

// Writer хранилище, принимающее новые показания
type Writer interface {
	Append(ctx context.Context, deviceID, key string, reading models.RawReading) error
}

// Unavailable источник без подключения (демо-режим)
type Unavailable struct{}

// Readings всегда возвращает ErrUnavailable
func (Unavailable) Readings(context.Context, string) (map[string]models.RawReading, error) {
	return nil, ErrUnavailable
}

// Devices всегда возвращает ErrUnavailable
func (Unavailable) Devices(context.Context) ([]string, error) {
	return nil, ErrUnavailable
}

// Ping всегда возвращает ErrUnavailable
func (Unavailable) Ping(context.Context) error {
	return ErrUnavailable
}

// Append всегда возвращает ErrUnavailable
func (Unavailable) Append(context.Context, string, string, models.RawReading) error {
	return ErrUnavailable
}

// Close ничего не делает
func (Unavailable) Close() error {
	return nil
}

// unavailable переводит ошибку транспорта в ErrUnavailable, отмену контекста оставляет как есть
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// decodeReading разбирает JSON-запись; нечитаемые записи отбрасываются
func decodeReading(data []byte) (models.RawReading, bool) {
	var r models.RawReading
	if err := json.Unmarshal(data, &r); err != nil {
		metrics.ReadingsDropped.WithLabelValues("undecodable").Inc()
		return models.RawReading{}, false
	}
	return r, true
}

// EncodeReading сериализует запись для хранения
func EncodeReading(r models.RawReading) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading: %w", err)
	}
	return data, nil
}
