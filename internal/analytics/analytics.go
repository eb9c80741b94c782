// Package analytics реализует статистический анализ серий показаний
// Включает min/max/mean по каналам и нормированный индикатор тренда (МНК + tanh)
package analytics

import (
	"math"

	"envmonitor-service/internal/models"
)

const (
	// TrendScale множитель наклона перед tanh
	TrendScale = 10.0
	// TrendThreshold порог классификации тренда (rising / falling)
	TrendThreshold = 0.1
)

// accumulator накапливает статистику по значениям канала.
// Среднее и сумма квадратов отклонений считаются инкрементально (Уэлфорд), без переполнения суммы.
type accumulator struct {
	count int
	mean  float64
	m2    float64
	min   float64
	max   float64
}

// Add добавляет новое значение
func (a *accumulator) Add(value float64) {
	if a.count == 0 || value < a.min {
		a.min = value
	}
	if a.count == 0 || value > a.max {
		a.max = value
	}
	a.count++
	delta := value - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (value - a.mean)
}

// Mean возвращает среднее значение
func (a *accumulator) Mean() float64 {
	return a.mean
}

// StdDev возвращает выборочное стандартное отклонение
func (a *accumulator) StdDev() float64 {
	if a.count < 2 {
		return 0
	}
	variance := a.m2 / float64(a.count-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Summarize вычисляет статистику для каждого канала серии.
// Серия должна быть упорядочена по времени.
func Summarize(series models.Series) map[models.Channel]models.ChannelStatistics {
	values := collect(series)

	result := make(map[models.Channel]models.ChannelStatistics, len(values))
	for _, ch := range models.Channels() {
		result[ch] = summarizeValues(values[ch])
	}
	return result
}

// collect собирает непропущенные значения каждого канала в порядке времени
func collect(series models.Series) map[models.Channel][]float64 {
	values := make(map[models.Channel][]float64, len(models.Channels()))
	for _, s := range series {
		for _, ch := range models.Channels() {
			if v, ok := s.Value(ch); ok {
				values[ch] = append(values[ch], v)
			}
		}
	}
	return values
}

func summarizeValues(values []float64) models.ChannelStatistics {
	if len(values) == 0 {
		return models.ChannelStatistics{Direction: models.Stable}
	}

	var acc accumulator
	for _, v := range values {
		acc.Add(v)
	}

	lo, hi, mean := acc.min, acc.max, acc.Mean()
	stats := models.ChannelStatistics{
		Min:   &lo,
		Max:   &hi,
		Mean:  &mean,
		Count: acc.count,
	}
	// на значениях порядка MaxFloat64 дисперсия переполняется
	if sd := acc.StdDev(); acc.count >= 2 && !math.IsInf(sd, 0) && !math.IsNaN(sd) {
		stats.StdDev = &sd
	}

	stats.Trend = Trend(values)
	stats.Direction = Classify(stats.Trend)
	return stats
}

// Slope возвращает наклон МНК-прямой значения от позиционного индекса (0, 1, 2, ...).
// Индекс, а не реальное время: неравномерная выборка смещает наклон.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	xMean := float64(n-1) / 2
	var yMean float64
	constant := true
	for i, v := range values {
		yMean += (v - yMean) / float64(i+1)
		constant = constant && v == values[0]
	}
	// Погрешность округления среднего не должна давать ненулевой наклон
	if constant {
		return 0
	}

	var sxy, sxx float64
	for i, v := range values {
		dx := float64(i) - xMean
		sxy += dx * (v - yMean)
		sxx += dx * dx
	}
	m := sxy / sxx
	if math.IsNaN(m) {
		return 0
	}
	return m
}

// Trend возвращает индикатор тренда tanh(10·m) в диапазоне (-1, 1)
func Trend(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	trend := math.Tanh(TrendScale * Slope(values))
	if math.IsNaN(trend) {
		return 0
	}
	return trend
}

// Classify переводит индикатор тренда в направление для отображения
func Classify(trend float64) models.Direction {
	switch {
	case trend > TrendThreshold:
		return models.Rising
	case trend < -TrendThreshold:
		return models.Falling
	default:
		return models.Stable
	}
}
