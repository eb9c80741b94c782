package models

import "time"

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Cache     string    `json:"cache"`
	Uptime    string    `json:"uptime"`
}

// DeviceList список устройств
type DeviceList struct {
	Devices []string `json:"devices"`
	Demo    bool     `json:"demo"`
}

// IngestResponse ответ на прием показания
type IngestResponse struct {
	DeviceID string `json:"device_id"`
	Key      string `json:"key"`
}
