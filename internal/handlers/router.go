package handlers

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter настраивает маршруты API, Prometheus и pprof
func NewRouter(h *Handler, log *slog.Logger) *mux.Router {
	router := mux.NewRouter()

	// API эндпоинты
	router.HandleFunc("/devices", h.DevicesHandler).Methods("GET")
	router.HandleFunc("/devices/{id}/report", h.ReportHandler).Methods("GET")
	router.HandleFunc("/devices/{id}/statistics", h.StatisticsHandler).Methods("GET")
	router.HandleFunc("/devices/{id}/latest", h.LatestHandler).Methods("GET")
	router.HandleFunc("/devices/{id}/export", h.ExportHandler).Methods("GET")
	router.HandleFunc("/devices/{id}/readings", h.IngestHandler).Methods("POST")
	router.HandleFunc("/health", h.HealthHandler).Methods("GET")

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(loggingMiddleware(log))
	return router
}

// statusRecorder запоминает код ответа для журнала
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(log *slog.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
