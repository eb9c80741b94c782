package synthetic

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envmonitor-service/internal/models"
)

func TestGenerateThirtyMinutes(t *testing.T) {
	g := New(WithSeed(1))
	w := models.TimeWindow{Start: time.Unix(0, 0), End: time.Unix(1800, 0)}

	series := g.Generate("dev1", w)

	require.Len(t, series, 7)
	assert.Equal(t, w.Start, series[0].Timestamp)
	assert.Equal(t, w.End, series[6].Timestamp)
	for i, s := range series {
		assert.Equal(t, time.Unix(int64(i*300), 0), s.Timestamp)
		require.Len(t, s.Values, 4)
		for _, ch := range []models.Channel{models.Humidity, models.LightLevel, models.SoilMoisture} {
			v, ok := s.Value(ch)
			require.True(t, ok)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
		_, ok := s.Value(models.Temperature)
		assert.True(t, ok)
	}
}

func TestGenerateClampsUnderHeavyNoise(t *testing.T) {
	g := New(WithRand(rand.New(rand.NewPCG(7, 11))))
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := models.TimeWindow{Start: now.Add(-30 * 24 * time.Hour), End: now}

	for run := 0; run < 3; run++ {
		for _, s := range g.Generate("dev", w) {
			for _, ch := range []models.Channel{models.Humidity, models.LightLevel, models.SoilMoisture} {
				v := s.Values[ch]
				if v < 0 || v > 100 {
					t.Fatalf("%s out of range: %f", ch, v)
				}
			}
		}
	}
}

func TestGenerateOrdered(t *testing.T) {
	g := New()
	w := models.TimeWindow{Start: time.Unix(1_000_000, 0), End: time.Unix(1_000_000+7*24*3600+17, 0)}

	series := g.Generate("dev", w)

	require.NotEmpty(t, series)
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Timestamp.After(series[i-1].Timestamp))
	}
	for _, s := range series {
		assert.True(t, w.Contains(s.Timestamp))
	}
	assert.Equal(t, w.End, series[len(series)-1].Timestamp)
}

func TestGenerateShortAndReversedWindows(t *testing.T) {
	g := New()
	start := time.Unix(10_000, 0)

	single := g.Generate("dev", models.TimeWindow{Start: start, End: start.Add(299 * time.Second)})
	require.Len(t, single, 1)
	assert.Equal(t, start, single[0].Timestamp)

	empty := g.Generate("dev", models.TimeWindow{Start: start, End: start.Add(-time.Second)})
	assert.Empty(t, empty)
}

func TestSeedIsPerDevice(t *testing.T) {
	w := models.TimeWindow{Start: time.Unix(0, 0), End: time.Unix(3600, 0)}

	a1 := New(WithSeed(42)).Generate("a", w)
	a2 := New(WithSeed(42)).Generate("a", w)
	b := New(WithSeed(42)).Generate("b", w)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1[0].Values[models.Temperature], b[0].Values[models.Temperature])
}

func TestBaseDailyCycles(t *testing.T) {
	g := New(WithoutNoise())
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	w := models.TimeWindow{Start: day, End: day.Add(24 * time.Hour)}

	byHour := map[int]models.Sample{}
	for _, s := range g.Base(w) {
		if s.Timestamp.Minute() == 0 {
			byHour[s.Timestamp.Hour()] = s
		}
	}

	assert.InDelta(t, 22.0, byHour[0].Values[models.Temperature], 1e-9)
	assert.InDelta(t, 27.0, byHour[6].Values[models.Temperature], 1e-9)
	assert.InDelta(t, 45.0, byHour[6].Values[models.Humidity], 1e-9)
	assert.InDelta(t, 90.0, byHour[12].Values[models.LightLevel], 1e-9)
	assert.Equal(t, 0.0, byHour[3].Values[models.LightLevel])
	assert.Equal(t, 0.0, byHour[18].Values[models.LightLevel])
}

func TestBaseWateringResetsSuffix(t *testing.T) {
	g := New(WithoutNoise())
	// 2024-03-12 is a Tuesday
	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	watering := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	w := models.TimeWindow{Start: start, End: time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)}

	base := g.Base(w)

	idx := -1
	for i, s := range base {
		if s.Timestamp.Equal(watering) {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "window must contain Tuesday 09:00")

	for i := idx; i < len(base); i++ {
		assert.Equal(t, 80.0, base[i].Values[models.SoilMoisture], "index %d", i)
	}

	// Before the first watering point (08:05) the ramp is still declining
	eight := time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)
	for i, s := range base {
		if s.Timestamp.Equal(eight) {
			assert.Less(t, s.Values[models.SoilMoisture], 80.0)
			assert.Equal(t, moistureRamp(i, len(base)), s.Values[models.SoilMoisture])
		}
	}
	assert.Equal(t, 80.0, base[0].Values[models.SoilMoisture])
}

func TestBaseRampWithoutWatering(t *testing.T) {
	g := New(WithoutNoise())
	// Monday only, no watering
	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	w := models.TimeWindow{Start: start, End: start.Add(10 * time.Hour)}

	base := g.Base(w)

	assert.Equal(t, 80.0, base[0].Values[models.SoilMoisture])
	assert.InDelta(t, 30.0, base[len(base)-1].Values[models.SoilMoisture], 1e-9)
	for i := 1; i < len(base); i++ {
		assert.Less(t, base[i].Values[models.SoilMoisture], base[i-1].Values[models.SoilMoisture])
	}
}

func TestWateringUsesLocation(t *testing.T) {
	// 09:00 UTC on a Tuesday is 18:00 in Tokyo, outside the watering hours
	ts := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)

	assert.True(t, IsWateringTime(ts))
	assert.False(t, IsWateringTime(ts.In(tokyo)))
	assert.False(t, IsWateringTime(time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)))
	assert.False(t, IsWateringTime(time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)))
	assert.True(t, IsWateringTime(time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)))
}

func BenchmarkGenerateMonth(b *testing.B) {
	g := New(WithSeed(3))
	now := time.Now()
	w := models.TimeWindow{Start: now.Add(-30 * 24 * time.Hour), End: now}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Generate("bench", w)
	}
}
