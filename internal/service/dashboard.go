// Package service собирает конвейер: окно -> источник (или генератор) -> загрузка -> статистика
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"envmonitor-service/internal/analytics"
	"envmonitor-service/internal/loader"
	"envmonitor-service/internal/metrics"
	"envmonitor-service/internal/models"
	"envmonitor-service/internal/source"
	"envmonitor-service/internal/synthetic"
	"envmonitor-service/internal/timerange"
)

var (
	// ErrInvalidDevice некорректный идентификатор устройства
	ErrInvalidDevice = errors.New("invalid device id")
	// ErrInvalidReading запись без timestamp или readings
	ErrInvalidReading = errors.New("reading must contain timestamp and readings")
)

// DemoDevices устройства, показываемые без подключения к хранилищу
var DemoDevices = []string{"esp32_env_monitor_01", "esp32_env_monitor_02", "classroom_monitor"}

// ReportCache кэш готовых отчетов
type ReportCache interface {
	GetReport(ctx context.Context, deviceID string, selector models.Selector, now time.Time) (*models.Report, bool, error)
	PutReport(ctx context.Context, report *models.Report, now time.Time) error
}

// Dashboard строит отчеты по устройствам
type Dashboard struct {
	source    source.ReadingSource
	generator *synthetic.Generator
	cache     ReportCache
	clock     timerange.Clock
	log       *slog.Logger
}

// Option настраивает Dashboard
type Option func(*Dashboard)

// WithCache включает кэш отчетов
func WithCache(c ReportCache) Option {
	return func(d *Dashboard) {
		d.cache = c
	}
}

// WithGenerator задает генератор синтетических данных
func WithGenerator(g *synthetic.Generator) Option {
	return func(d *Dashboard) {
		d.generator = g
	}
}

// WithClock задает источник текущего времени
func WithClock(c timerange.Clock) Option {
	return func(d *Dashboard) {
		d.clock = c
	}
}

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(d *Dashboard) {
		d.log = l
	}
}

// NewDashboard создает сервис; nil-источник означает демо-режим
func NewDashboard(src source.ReadingSource, opts ...Option) *Dashboard {
	if src == nil {
		src = source.Unavailable{}
	}
	d := &Dashboard{
		source:    src,
		generator: synthetic.New(),
		clock:     timerange.SystemClock,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Now возвращает текущее время по часам сервиса
func (d *Dashboard) Now() time.Time {
	return d.clock()
}

// Report строит отчет по устройству для селектора на момент now
func (d *Dashboard) Report(ctx context.Context, deviceID string, selector models.Selector, now time.Time) (*models.Report, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	// Нераспознанный селектор получает окно по умолчанию, но в кэш не попадает
	cacheable := d.cache != nil && timerange.Known(selector)
	if !timerange.Known(selector) {
		d.log.Debug("unknown selector, using default window", "device", deviceID, "selector", selector)
	}

	if cacheable {
		cached, ok, err := d.cache.GetReport(ctx, deviceID, selector, now)
		if err != nil {
			d.log.Warn("report cache lookup failed", "device", deviceID, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	start := time.Now()
	window := timerange.Resolve(selector, now)

	series, isSynthetic, err := d.series(ctx, deviceID, window)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		DeviceID:    deviceID,
		Selector:    selector,
		Window:      window,
		Synthetic:   isSynthetic,
		Samples:     series,
		Statistics:  analytics.Summarize(series),
		GeneratedAt: now,
	}
	if latest, ok := series.Latest(); ok {
		report.Latest = &latest
	}
	metrics.SummaryLatency.Observe(time.Since(start).Seconds())

	if cacheable {
		if err := d.cache.PutReport(ctx, report, now); err != nil {
			d.log.Warn("report cache store failed", "device", deviceID, "error", err)
		}
	}
	return report, nil
}

// series читает показания или, если источник недоступен, генерирует их
func (d *Dashboard) series(ctx context.Context, deviceID string, window models.TimeWindow) (models.Series, bool, error) {
	raw, err := d.source.Readings(ctx, deviceID)
	if errors.Is(err, source.ErrUnavailable) {
		metrics.SyntheticFallbacks.Inc()
		d.log.Debug("source unavailable, using synthetic data", "device", deviceID, "error", err)
		return d.generator.Generate(deviceID, window), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read readings for %s: %w", deviceID, err)
	}

	series, rep := loader.LoadWithReport(raw, window)
	if rep.Malformed > 0 {
		metrics.ReadingsDropped.WithLabelValues("malformed").Add(float64(rep.Malformed))
		d.log.Debug("skipped malformed readings", "device", deviceID, "count", rep.Malformed)
	}
	return series, false, nil
}

// Devices возвращает список устройств; без хранилища отдает демо-устройства
func (d *Dashboard) Devices(ctx context.Context) (models.DeviceList, error) {
	devices, err := d.source.Devices(ctx)
	if errors.Is(err, source.ErrUnavailable) {
		return models.DeviceList{Devices: append([]string(nil), DemoDevices...), Demo: true}, nil
	}
	if err != nil {
		return models.DeviceList{}, fmt.Errorf("failed to list devices: %w", err)
	}
	if devices == nil {
		devices = []string{}
	}
	return models.DeviceList{Devices: devices}, nil
}

// Ingest сохраняет новое показание под случайным ключом и возвращает ключ
func (d *Dashboard) Ingest(ctx context.Context, deviceID string, reading models.RawReading, transport string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	if reading.Timestamp == nil || reading.Readings == nil {
		return "", ErrInvalidReading
	}

	w, ok := d.source.(source.Writer)
	if !ok {
		return "", source.ErrNotWritable
	}

	key := uuid.NewString()
	if err := w.Append(ctx, deviceID, key, reading); err != nil {
		return "", err
	}

	metrics.ReadingsIngested.WithLabelValues(transport).Inc()
	return key, nil
}

// SourceStatus состояние хранилища для health-check
func (d *Dashboard) SourceStatus(ctx context.Context) string {
	err := d.source.Ping(ctx)
	switch {
	case err == nil:
		return "connected"
	case errors.Is(err, source.ErrUnavailable):
		return "demo"
	default:
		return "error"
	}
}

// ValidateDeviceID проверяет идентификатор: непустой, без разделителей ключей и MQTT-шаблонов
func ValidateDeviceID(id string) error {
	if id == "" || len(id) > 128 || strings.ContainsAny(id, "/+#: \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, id)
	}
	return nil
}
