// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relvacode/iso8601"

	"envmonitor-service/internal/metrics"
	"envmonitor-service/internal/models"
	"envmonitor-service/internal/service"
	"envmonitor-service/internal/source"
)

// Transport метка транспорта для показаний, принятых по HTTP
const Transport = "http"

// maxReadingSize ограничение тела POST /devices/{id}/readings
const maxReadingSize = 64 << 10

// Pinger проверка доступности зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	dashboard *service.Dashboard
	cache     Pinger
	startTime time.Time
}

// NewHandler создает новый обработчик. cache может быть nil
func NewHandler(dashboard *service.Dashboard, cache Pinger) *Handler {
	return &Handler{
		dashboard: dashboard,
		cache:     cache,
		startTime: time.Now(),
	}
}

// DevicesHandler обрабатывает GET /devices - список устройств
func (h *Handler) DevicesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/devices"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	list, err := h.dashboard.Devices(r.Context())
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, list, http.StatusOK)
}

// ReportHandler обрабатывает GET /devices/{id}/report - полный отчет
func (h *Handler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/devices/{id}/report"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	report, ok := h.report(w, r, endpoint)
	if !ok {
		return
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, report, http.StatusOK)
}

// StatisticsHandler обрабатывает GET /devices/{id}/statistics - статистика без серии
func (h *Handler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/devices/{id}/statistics"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	report, ok := h.report(w, r, endpoint)
	if !ok {
		return
	}

	response := map[string]interface{}{
		"device_id":  report.DeviceID,
		"selector":   report.Selector,
		"window":     report.Window,
		"synthetic":  report.Synthetic,
		"count":      len(report.Samples),
		"statistics": report.Statistics,
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, response, http.StatusOK)
}

// LatestHandler обрабатывает GET /devices/{id}/latest - последнее показание
func (h *Handler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/devices/{id}/latest"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	report, ok := h.report(w, r, endpoint)
	if !ok {
		return
	}
	if report.Latest == nil {
		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "404").Inc()
		h.respondError(w, "No readings in the selected window", http.StatusNotFound)
		return
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, report.Latest, http.StatusOK)
}

// ExportHandler обрабатывает GET /devices/{id}/export - выгрузка серии в CSV
func (h *Handler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/devices/{id}/export"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	report, ok := h.report(w, r, endpoint)
	if !ok {
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", report.DeviceID, report.Selector)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	if err := WriteCSV(w, report.Samples); err != nil {
		// заголовок уже отправлен
		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "500").Inc()
		return
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
}

// IngestHandler обрабатывает POST /devices/{id}/readings - прием показания
func (h *Handler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/devices/{id}/readings"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	deviceID := mux.Vars(r)["id"]

	var reading models.RawReading
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReadingSize)).Decode(&reading); err != nil {
		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "400").Inc()
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	key, err := h.dashboard.Ingest(r.Context(), deviceID, reading, Transport)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "201").Inc()
	h.respondJSON(w, models.IngestResponse{DeviceID: deviceID, Key: key}, http.StatusCreated)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "disconnected"
		if h.cache.Ping(r.Context()) == nil {
			cacheStatus = "connected"
		}
	}

	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Source:    h.dashboard.SourceStatus(r.Context()),
		Cache:     cacheStatus,
		Uptime:    time.Since(h.startTime).String(),
	}

	h.respondJSON(w, status, http.StatusOK)
}

// report строит отчет по параметрам запроса: {id}, ?range=, ?at=
func (h *Handler) report(w http.ResponseWriter, r *http.Request, endpoint string) (*models.Report, bool) {
	deviceID := mux.Vars(r)["id"]

	selector := models.LastHour
	if v := r.URL.Query().Get("range"); v != "" {
		selector = models.ParseSelector(v)
	}

	now := h.dashboard.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		at, err := iso8601.ParseString(v)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "400").Inc()
			h.respondError(w, "Invalid 'at' timestamp: "+err.Error(), http.StatusBadRequest)
			return nil, false
		}
		now = at
	}

	report, err := h.dashboard.Report(r.Context(), deviceID, selector, now)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return nil, false
	}
	return report, true
}

// fail переводит ошибку сервиса в HTTP статус
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidDevice), errors.Is(err, service.ErrInvalidReading):
		status = http.StatusBadRequest
	case errors.Is(err, source.ErrUnavailable), errors.Is(err, source.ErrNotWritable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	h.respondError(w, err.Error(), status)
}

// WriteCSV записывает серию: timestamp (unix, сек), datetime (RFC 3339, UTC) и по столбцу на канал.
// Пропущенные значения выводятся пустыми ячейками.
func WriteCSV(w io.Writer, series models.Series) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "datetime"}
	for _, ch := range models.Channels() {
		header = append(header, ch.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, s := range series {
		row[0] = strconv.FormatFloat(float64(s.Timestamp.Unix())+float64(s.Timestamp.Nanosecond())/1e9, 'f', -1, 64)
		row[1] = s.Timestamp.UTC().Format(time.RFC3339)
		for i, ch := range models.Channels() {
			row[2+i] = ""
			if v, ok := s.Value(ch); ok {
				row[2+i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
