package analytics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"envmonitor-service/internal/models"
)

func seriesOf(ch models.Channel, values ...float64) models.Series {
	start := time.Unix(1_700_000_000, 0)
	s := make(models.Series, len(values))
	for i, v := range values {
		s[i] = models.Sample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Values:    map[models.Channel]float64{ch: v},
		}
	}
	return s
}

func TestAccumulator_Add(t *testing.T) {
	var acc accumulator

	values := []float64{10, 20, 30, 40, 50}
	for _, v := range values {
		acc.Add(v)
	}

	if acc.count != 5 {
		t.Errorf("Expected count 5, got %d", acc.count)
	}
	if math.Abs(acc.Mean()-30.0) > 0.001 {
		t.Errorf("Expected mean 30, got %.2f", acc.Mean())
	}
	if acc.min != 10 || acc.max != 50 {
		t.Errorf("Expected min 10 max 50, got %.2f %.2f", acc.min, acc.max)
	}
}

func TestAccumulator_StdDev(t *testing.T) {
	var same accumulator
	for i := 0; i < 5; i++ {
		same.Add(50)
	}
	if same.StdDev() != 0 {
		t.Errorf("Expected stddev 0 for identical values, got %.4f", same.StdDev())
	}

	var acc accumulator
	for _, v := range []float64{2, 4, 4, 4, 5} {
		acc.Add(v)
	}
	// Sample stddev of [2,4,4,4,5] is sqrt(1.2) ≈ 1.095
	if math.Abs(acc.StdDev()-math.Sqrt(1.2)) > 1e-9 {
		t.Errorf("Expected stddev %.4f, got %.4f", math.Sqrt(1.2), acc.StdDev())
	}
}

func TestSummarize_BasicStatistics(t *testing.T) {
	stats := Summarize(seriesOf(models.Temperature, 10, 20, 30))

	temp := stats[models.Temperature]
	if temp.Min == nil || *temp.Min != 10 {
		t.Errorf("Expected min 10, got %v", temp.Min)
	}
	if temp.Max == nil || *temp.Max != 30 {
		t.Errorf("Expected max 30, got %v", temp.Max)
	}
	if temp.Mean == nil || math.Abs(*temp.Mean-20) > 1e-9 {
		t.Errorf("Expected mean 20, got %v", temp.Mean)
	}
	if temp.Trend <= 0 {
		t.Errorf("Expected positive trend, got %.4f", temp.Trend)
	}
	if temp.Direction != models.Rising {
		t.Errorf("Expected rising, got %s", temp.Direction)
	}
	if temp.Count != 3 {
		t.Errorf("Expected count 3, got %d", temp.Count)
	}
}

func TestSummarize_MissingChannel(t *testing.T) {
	stats := Summarize(seriesOf(models.Temperature, 1, 2, 3))

	if len(stats) != len(models.Channels()) {
		t.Fatalf("Expected statistics for every channel, got %d", len(stats))
	}

	for _, ch := range []models.Channel{models.Humidity, models.LightLevel, models.SoilMoisture} {
		s := stats[ch]
		if s.Min != nil || s.Max != nil || s.Mean != nil || s.StdDev != nil {
			t.Errorf("%s: expected absent statistics, got %+v", ch, s)
		}
		if s.Trend != 0 {
			t.Errorf("%s: expected trend 0, got %.4f", ch, s.Trend)
		}
		if s.Direction != models.Stable {
			t.Errorf("%s: expected stable, got %s", ch, s.Direction)
		}
	}
}

func TestSummarize_EmptySeries(t *testing.T) {
	stats := Summarize(nil)
	for _, ch := range models.Channels() {
		if stats[ch].Mean != nil || stats[ch].Trend != 0 {
			t.Errorf("%s: expected empty statistics, got %+v", ch, stats[ch])
		}
	}
}

func TestSummarize_SkipsGaps(t *testing.T) {
	series := seriesOf(models.Humidity, 50, 60, 70)
	// Sample in the middle with humidity missing
	gap := models.Sample{
		Timestamp: series[1].Timestamp.Add(30 * time.Second),
		Values:    map[models.Channel]float64{models.Temperature: 21},
	}
	series = append(series[:2], append(models.Series{gap}, series[2:]...)...)

	stats := Summarize(series)
	h := stats[models.Humidity]
	if h.Count != 3 {
		t.Errorf("Expected 3 humidity values, got %d", h.Count)
	}
	// Index-based fit over [50,60,70] has slope exactly 10
	if math.Abs(h.Trend-math.Tanh(100)) > 1e-12 {
		t.Errorf("Expected trend tanh(100), got %.6f", h.Trend)
	}

	temp := stats[models.Temperature]
	if temp.Count != 1 || temp.Trend != 0 || temp.StdDev != nil {
		t.Errorf("Single value should have trend 0 and no stddev, got %+v", temp)
	}
}

func TestTrend_Sign(t *testing.T) {
	if tr := Trend([]float64{1, 2, 3, 5, 8}); tr <= 0 {
		t.Errorf("Expected positive trend for increasing values, got %.4f", tr)
	}
	if tr := Trend([]float64{9, 7, 4, 2, 1}); tr >= 0 {
		t.Errorf("Expected negative trend for decreasing values, got %.4f", tr)
	}
	if tr := Trend([]float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}); tr != 0 {
		t.Errorf("Expected zero trend for constant values, got %g", tr)
	}
	if tr := Trend([]float64{42}); tr != 0 {
		t.Errorf("Expected zero trend for single value, got %g", tr)
	}
}

func TestTrend_Bounded(t *testing.T) {
	tr := Trend([]float64{0, 1000, 2000})
	if tr > 1 || tr < -1 {
		t.Errorf("Trend out of bounds: %.4f", tr)
	}
}

func TestSummarize_HugeValuesStayFinite(t *testing.T) {
	stats := Summarize(seriesOf(models.Temperature, 1.7e308, 1.7e308, 0))[models.Temperature]

	if stats.Mean == nil || math.IsInf(*stats.Mean, 0) || math.IsNaN(*stats.Mean) {
		t.Fatalf("Expected finite mean, got %v", stats.Mean)
	}
	if math.Abs(*stats.Mean-1.7e308*2/3) > 1e295 {
		t.Errorf("Expected mean %.4g, got %.4g", 1.7e308*2/3, *stats.Mean)
	}
	if math.IsNaN(stats.Trend) || stats.Trend > 1 || stats.Trend < -1 {
		t.Errorf("Trend out of bounds: %v", stats.Trend)
	}
	if stats.Direction != models.Falling {
		t.Errorf("Expected falling direction, got %s", stats.Direction)
	}
	if stats.StdDev != nil && (math.IsInf(*stats.StdDev, 0) || math.IsNaN(*stats.StdDev)) {
		t.Errorf("Expected finite or absent stddev, got %v", *stats.StdDev)
	}
	if _, err := json.Marshal(stats); err != nil {
		t.Errorf("Statistics must stay JSON-encodable: %v", err)
	}
}

func TestSlope_MatchesLeastSquares(t *testing.T) {
	// y = 2x + 1 with symmetric noise; least-squares slope stays 2
	values := []float64{1.5, 2.5, 4.5, 7.5}
	if s := Slope(values); math.Abs(s-2) > 1e-9 {
		t.Errorf("Expected slope 2, got %.6f", s)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		trend float64
		want  models.Direction
	}{
		{0.5, models.Rising},
		{0.1, models.Stable},
		{0, models.Stable},
		{-0.1, models.Stable},
		{-0.11, models.Falling},
	}
	for _, tc := range cases {
		if got := Classify(tc.trend); got != tc.want {
			t.Errorf("Classify(%.2f) = %s, want %s", tc.trend, got, tc.want)
		}
	}
}

func BenchmarkSummarize(b *testing.B) {
	values := make([]float64, 8640)
	for i := range values {
		values[i] = float64(i % 100)
	}
	series := seriesOf(models.SoilMoisture, values...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Summarize(series)
	}
}

func BenchmarkAccumulatorAdd(b *testing.B) {
	var acc accumulator

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.Add(float64(i % 100))
	}
}
