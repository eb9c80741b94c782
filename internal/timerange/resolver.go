// Package timerange переводит символьный выбор диапазона в конкретное окно времени
package timerange

import (
	"time"

	"envmonitor-service/internal/models"
)

// DefaultDuration длительность окна для нераспознанного селектора
const DefaultDuration = time.Hour

var durations = map[models.Selector]time.Duration{
	models.LastHour:  time.Hour,
	models.LastDay:   24 * time.Hour,
	models.LastWeek:  7 * 24 * time.Hour,
	models.LastMonth: 30 * 24 * time.Hour,
}

// Clock источник текущего времени
type Clock func() time.Time

// SystemClock возвращает системное время
func SystemClock() time.Time {
	return time.Now()
}

// Duration возвращает длительность окна для селектора
func Duration(s models.Selector) time.Duration {
	if d, ok := durations[s]; ok {
		return d
	}
	return DefaultDuration
}

// Known сообщает, распознан ли селектор
func Known(s models.Selector) bool {
	_, ok := durations[s]
	return ok
}

// Resolve возвращает окно [now - duration, now]
func Resolve(s models.Selector, now time.Time) models.TimeWindow {
	return models.TimeWindow{
		Start: now.Add(-Duration(s)),
		End:   now,
	}
}
