// Package loader фильтрует и упорядочивает сырые показания из внешнего хранилища
package loader

import (
	"math"
	"sort"
	"time"

	"envmonitor-service/internal/models"
)

// Report счетчики отброшенных записей
type Report struct {
	Total       int `json:"total"`
	Loaded      int `json:"loaded"`
	Malformed   int `json:"malformed"`
	OutOfWindow int `json:"out_of_window"`
}

// Load строит упорядоченную серию из сырых записей в пределах окна
func Load(raw map[string]models.RawReading, window models.TimeWindow) models.Series {
	series, _ := LoadWithReport(raw, window)
	return series
}

// LoadWithReport то же, что Load, но дополнительно возвращает счетчики.
// Записи без timestamp или readings пропускаются молча.
func LoadWithReport(raw map[string]models.RawReading, window models.TimeWindow) (models.Series, Report) {
	report := Report{Total: len(raw)}

	type keyed struct {
		key    string
		sample models.Sample
	}
	loaded := make([]keyed, 0, len(raw))

	for key, r := range raw {
		if r.Timestamp == nil || r.Readings == nil || !finite(*r.Timestamp) {
			report.Malformed++
			continue
		}

		ts := fromUnixSeconds(*r.Timestamp)
		if !window.Contains(ts) {
			report.OutOfWindow++
			continue
		}

		loaded = append(loaded, keyed{key: key, sample: toSample(ts, r.Readings)})
	}

	// Порядок обхода map случаен, поэтому при равных временах сортируем по ключу
	sort.Slice(loaded, func(i, j int) bool {
		ti, tj := loaded[i].sample.Timestamp, loaded[j].sample.Timestamp
		if ti.Equal(tj) {
			return loaded[i].key < loaded[j].key
		}
		return ti.Before(tj)
	})

	series := make(models.Series, len(loaded))
	for i, k := range loaded {
		series[i] = k.sample
	}
	report.Loaded = len(series)

	return series, report
}

// toSample переносит значения известных каналов; пропуски остаются пропусками
func toSample(ts time.Time, readings map[string]*float64) models.Sample {
	values := make(map[models.Channel]float64, len(readings))
	for name, v := range readings {
		if v == nil || !finite(*v) {
			continue
		}
		ch, err := models.ParseChannel(name)
		if err != nil {
			continue
		}
		values[ch] = *v
	}
	return models.Sample{Timestamp: ts, Values: values}
}

// fromUnixSeconds переводит дробные секунды эпохи во время
func fromUnixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
