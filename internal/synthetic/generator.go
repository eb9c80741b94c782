// Package synthetic генерирует правдоподобную многоканальную серию показаний
// для демо-режима и для случаев, когда хранилище недоступно
package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"

	"envmonitor-service/internal/models"
)

const (
	// Step шаг между точками (5 минут)
	Step = 300 * time.Second

	moistureHigh = 80.0
	moistureLow  = 30.0
)

// Стандартные отклонения шума по каналам
var noiseStdDev = map[models.Channel]float64{
	models.Temperature:  1,
	models.Humidity:     5,
	models.LightLevel:   5,
	models.SoilMoisture: 3,
}

// Generator синтетический источник показаний
type Generator struct {
	location *time.Location
	noise    bool
	seed     *uint64
	rnd      *rand.Rand
}

// Option настраивает генератор
type Option func(*Generator)

// WithLocation задает часовой пояс для суточных и недельных циклов
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// WithoutNoise отключает гауссов шум (режим для тестов)
func WithoutNoise() Option {
	return func(g *Generator) {
		g.noise = false
	}
}

// WithSeed фиксирует зерно; шум становится детерминированным для устройства
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.seed = &seed
	}
}

// WithRand задает общий источник случайности. *rand.Rand не потокобезопасен.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rnd = r
	}
}

// New создает генератор (UTC, с шумом, случайное зерно)
func New(opts ...Option) *Generator {
	g := &Generator{
		location: time.UTC,
		noise:    true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate строит серию для окна. deviceID влияет только на зерно шума.
func (g *Generator) Generate(deviceID string, window models.TimeWindow) models.Series {
	series := g.Base(window)
	if len(series) == 0 {
		return series
	}

	rnd := g.randFor(deviceID)
	for _, s := range series {
		for _, ch := range models.Channels() {
			v := s.Values[ch]
			if g.noise {
				v += rnd.NormFloat64() * noiseStdDev[ch]
			}
			if ch != models.Temperature {
				v = clamp(v, 0, 100)
			}
			s.Values[ch] = v
		}
	}
	return series
}

// Base возвращает значения до добавления шума и ограничения диапазона
func (g *Generator) Base(window models.TimeWindow) models.Series {
	times := Timestamps(window)
	n := len(times)
	series := make(models.Series, n)

	watered := false
	for i, ts := range times {
		local := ts.In(g.location)
		hour := HourOfDay(local)

		// Полив сбрасывает базу к 80 для этой и всех последующих точек
		if IsWateringTime(local) {
			watered = true
		}
		moisture := moistureRamp(i, n)
		if watered {
			moisture = moistureHigh
		}

		series[i] = models.Sample{
			Timestamp: ts,
			Values: map[models.Channel]float64{
				models.Temperature:  22 + 5*math.Sin(hour*math.Pi/12),
				models.Humidity:     60 - 15*math.Sin(hour*math.Pi/12),
				models.LightLevel:   lightBase(hour),
				models.SoilMoisture: moisture,
			},
		}
	}
	return series
}

// Timestamps равномерно распределяет floor(span/300s)+1 точек по [Start, End]
func Timestamps(window models.TimeWindow) []time.Time {
	span := window.Duration()
	if span < 0 {
		return nil
	}

	n := int(span/Step) + 1
	if n == 1 {
		return []time.Time{window.Start}
	}

	times := make([]time.Time, n)
	for i := 0; i < n-1; i++ {
		offset := time.Duration(float64(span) * float64(i) / float64(n-1))
		times[i] = window.Start.Add(offset)
	}
	times[n-1] = window.End
	return times
}

// HourOfDay дробный час суток [0, 24)
func HourOfDay(t time.Time) float64 {
	return float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600
}

// IsWateringTime полив по вторникам и пятницам строго между 8:00 и 10:00
func IsWateringTime(t time.Time) bool {
	wd := t.Weekday()
	if wd != time.Tuesday && wd != time.Friday {
		return false
	}
	h := HourOfDay(t)
	return h > 8 && h < 10
}

// lightBase дневной горб с пиком 90 в полдень, ночью 0
func lightBase(hour float64) float64 {
	if hour >= 6 && hour < 18 {
		return 90 * math.Sin(math.Pi*(hour-6)/12)
	}
	return 0
}

// moistureRamp линейное убывание от 80 в первой точке до 30 в последней
func moistureRamp(i, n int) float64 {
	if n <= 1 {
		return moistureHigh
	}
	return moistureHigh + (moistureLow-moistureHigh)*float64(i)/float64(n-1)
}

func (g *Generator) randFor(deviceID string) *rand.Rand {
	if g.rnd != nil {
		return g.rnd
	}
	seed := uint64(time.Now().UnixNano())
	if g.seed != nil {
		seed = *g.seed
	}
	return rand.New(rand.NewPCG(seed, xxhash.Sum64String(deviceID)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
