// Package main запускает сервис мониторинга окружающей среды
// Сервис реализует:
// - HTTP API отчетов по устройствам (статистика, тренды, CSV)
// - Синтетические данные, когда хранилище недоступно
// - Прием показаний по HTTP и MQTT
// - Кэширование отчетов в Redis
// - Экспорт метрик в Prometheus
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"envmonitor-service/internal/cache"
	"envmonitor-service/internal/config"
	"envmonitor-service/internal/handlers"
	"envmonitor-service/internal/ingest"
	"envmonitor-service/internal/models"
	"envmonitor-service/internal/service"
	"envmonitor-service/internal/source"
	"envmonitor-service/internal/synthetic"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	log.Info("starting envmonitor service",
		"go", runtime.Version(),
		"cpus", runtime.NumCPU(),
		"backend", cfg.Source.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := openSource(ctx, cfg.Source, log)
	defer src.Close()

	var reportCache *cache.RedisCache
	if cfg.Cache.Enabled {
		reportCache, err = cache.NewRedisCache(ctx, cache.Options{
			Addr:             cfg.Cache.RedisAddr,
			Password:         cfg.Cache.RedisPassword,
			DB:               cfg.Cache.RedisDB,
			TTL:              cfg.Cache.TTL.Duration,
			Bucket:           cfg.Cache.Bucket.Duration,
			CompressionLevel: cfg.Cache.CompressionLevel,
		})
		if err != nil {
			log.Warn("running without report cache", "error", err)
			reportCache = nil
		} else {
			defer reportCache.Close()
		}
	}

	dashboard := service.NewDashboard(src, dashboardOptions(cfg, reportCache, log)...)

	var wg sync.WaitGroup

	if cfg.Refresh.Enabled {
		refresher := service.NewRefresher(dashboard, cfg.Refresh.Devices,
			models.ParseSelector(cfg.Refresh.Selector), cfg.Refresh.Interval.Duration, cfg.Refresh.Workers)

		wg.Add(1)
		go func() {
			defer wg.Done()
			refresher.Run(ctx)
		}()
		log.Info("refresher started", "devices", cfg.Refresh.Devices, "interval", cfg.Refresh.Interval.Duration)
	}

	if cfg.MQTT.Enabled {
		collector, err := ingest.NewCollector(ingest.Config{
			BrokerURL: cfg.MQTT.BrokerURL,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
			QoS:       byte(cfg.MQTT.QoS),
		}, dashboard, log.With("component", "mqtt"))
		if err != nil {
			log.Error("invalid mqtt configuration", "error", err)
			os.Exit(1)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := collector.Run(ctx); err != nil {
				log.Error("mqtt collector failed", "error", err)
			}
		}()
	}

	var cachePinger handlers.Pinger
	if reportCache != nil {
		cachePinger = reportCache
	}
	handler := handlers.NewHandler(dashboard, cachePinger)

	// Создаем HTTP сервер с настройками таймаутов
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handlers.NewRouter(handler, log),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		log.Info("endpoints",
			"GET", "/devices, /devices/{id}/report|statistics|latest|export, /health, /prometheus",
			"POST", "/devices/{id}/readings",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	wg.Wait()

	log.Info("server stopped")
}

// newLogger создает slog-логгер с цветным выводом tint
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    cfg.NoColor,
	}))
}

// openSource подключает хранилище показаний; при неудаче сервис работает в демо-режиме
func openSource(ctx context.Context, cfg config.SourceConfig, log *slog.Logger) source.ReadingSource {
	switch cfg.Backend {
	case config.BackendRedis:
		var lastErr error
		attempts := max(cfg.ConnectRetry, 1)
		// Пробуем подключиться к Redis с повторами
		for i := 0; i < attempts; i++ {
			src, err := source.NewRedisSource(ctx, source.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			if err == nil {
				log.Info("connected to redis", "addr", cfg.RedisAddr)
				return src
			}
			lastErr = err
			log.Warn("redis connection attempt failed", "attempt", i+1, "error", err)
			if i < attempts-1 {
				select {
				case <-ctx.Done():
					return source.Unavailable{}
				case <-time.After(time.Duration(i+1) * time.Second):
				}
			}
		}
		log.Warn("storage unavailable, serving synthetic data", "error", lastErr)

	case config.BackendBadger:
		src, err := source.NewBadgerSource(cfg.BadgerPath)
		if err == nil {
			log.Info("opened badger storage", "path", cfg.BadgerPath)
			return src
		}
		log.Warn("storage unavailable, serving synthetic data", "error", err)

	default:
		log.Info("no storage configured, serving synthetic data")
	}
	return source.Unavailable{}
}

func dashboardOptions(cfg *config.Config, reportCache *cache.RedisCache, log *slog.Logger) []service.Option {
	// Validate уже проверил имя зоны
	loc, _ := time.LoadLocation(cfg.Generator.Location)

	genOpts := []synthetic.Option{synthetic.WithLocation(loc)}
	if cfg.Generator.Seed != 0 {
		genOpts = append(genOpts, synthetic.WithSeed(cfg.Generator.Seed))
	}

	opts := []service.Option{
		service.WithGenerator(synthetic.New(genOpts...)),
		service.WithLogger(log),
	}
	if reportCache != nil {
		opts = append(opts, service.WithCache(reportCache))
	}
	return opts
}
