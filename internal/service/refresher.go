package service

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"envmonitor-service/internal/metrics"
	"envmonitor-service/internal/models"
)

// Refresher периодически пересчитывает отчеты и обновляет метрики Prometheus
type Refresher struct {
	dashboard *Dashboard
	devices   []string
	selector  models.Selector
	interval  time.Duration
	workers   int
	log       *slog.Logger
}

// NewRefresher создает обновлятель. Пустой список устройств означает все известные устройства.
func NewRefresher(d *Dashboard, devices []string, selector models.Selector, interval time.Duration, workers int) *Refresher {
	if workers < 1 {
		workers = 1
	}
	return &Refresher{
		dashboard: d,
		devices:   devices,
		selector:  selector,
		interval:  interval,
		workers:   workers,
		log:       d.log,
	}
}

// Run выполняет обновление по таймеру до отмены контекста
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RefreshOnce(ctx)
	for {
		select {
		case <-ticker.C:
			r.RefreshOnce(ctx)
		case <-ctx.Done():
			r.log.Info("refresher stopped")
			return
		}
	}
}

// RefreshOnce пересчитывает отчеты всех устройств пулом горутин и возвращает число успешных
func (r *Refresher) RefreshOnce(ctx context.Context) int {
	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

	devices := r.devices
	if len(devices) == 0 {
		list, err := r.dashboard.Devices(ctx)
		if err != nil {
			r.log.Error("refresh: failed to list devices", "error", err)
			return 0
		}
		devices = list.Devices
	}

	now := r.dashboard.Now()
	jobs := make(chan string)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for deviceID := range jobs {
				report, err := r.dashboard.Report(ctx, deviceID, r.selector, now)
				if err != nil {
					r.log.Warn("refresh failed", "device", deviceID, "error", err)
					continue
				}
				metrics.UpdateChannelMetrics(deviceID, report.Statistics)
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}

	for _, deviceID := range devices {
		select {
		case jobs <- deviceID:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	r.log.Debug("refresh complete", "devices", len(devices), "ok", ok)
	return ok
}
