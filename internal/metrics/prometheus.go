// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"envmonitor-service/internal/models"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envmonitor_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "envmonitor_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint", "method"},
	)

	// ReadingsIngested количество принятых показаний
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envmonitor_readings_ingested_total",
			Help: "Total number of raw readings accepted",
		},
		[]string{"transport"},
	)

	// ReadingsDropped отброшенные записи по причине
	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envmonitor_readings_dropped_total",
			Help: "Raw readings dropped while loading",
		},
		[]string{"reason"},
	)

	// SyntheticFallbacks запросы, обслуженные синтетическими данными
	SyntheticFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "envmonitor_synthetic_fallbacks_total",
			Help: "Queries served from the synthetic generator",
		},
	)

	// CacheHits попадания в кэш
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "envmonitor_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses промахи кэша
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "envmonitor_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// ChannelMean среднее значение канала за последнее окно
	ChannelMean = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "envmonitor_channel_mean",
			Help: "Mean channel value over the last refreshed window",
		},
		[]string{"device", "channel"},
	)

	// ChannelTrend индикатор тренда канала
	ChannelTrend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "envmonitor_channel_trend",
			Help: "Trend indicator in [-1, 1] over the last refreshed window",
		},
		[]string{"device", "channel"},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "envmonitor_active_goroutines",
			Help: "Number of active goroutines",
		},
	)

	// SummaryLatency время построения отчета
	SummaryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "envmonitor_summary_latency_seconds",
			Help:    "Report computation latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// UpdateChannelMetrics обновляет датчики статистики устройства
func UpdateChannelMetrics(deviceID string, stats map[models.Channel]models.ChannelStatistics) {
	for ch, s := range stats {
		ChannelTrend.WithLabelValues(deviceID, ch.String()).Set(s.Trend)
		if s.Mean != nil {
			ChannelMean.WithLabelValues(deviceID, ch.String()).Set(*s.Mean)
		} else {
			ChannelMean.DeleteLabelValues(deviceID, ch.String())
		}
	}
}
