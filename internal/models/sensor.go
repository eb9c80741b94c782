// Package models содержит структуры данных для показаний датчиков и аналитики
package models

import (
	"fmt"
	"strings"
	"time"
)

// Channel измеряемая величина окружающей среды (закрытое перечисление)
type Channel int

const (
	Temperature Channel = iota
	Humidity
	LightLevel
	SoilMoisture

	channelCount
)

var channelNames = [channelCount]string{
	Temperature:  "temperature",
	Humidity:     "humidity",
	LightLevel:   "light_level",
	SoilMoisture: "soil_moisture",
}

// Channels возвращает все каналы в фиксированном порядке
func Channels() []Channel {
	return []Channel{Temperature, Humidity, LightLevel, SoilMoisture}
}

// String возвращает имя канала в формате источника данных
func (c Channel) String() string {
	if c < 0 || c >= channelCount {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Valid сообщает, входит ли канал в перечисление
func (c Channel) Valid() bool {
	return c >= 0 && c < channelCount
}

// ParseChannel разбирает имя канала
func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// MarshalText позволяет использовать Channel как ключ JSON-объекта
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid channel %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText разбирает ключ JSON-объекта
func (c *Channel) UnmarshalText(text []byte) error {
	ch, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}

// Sample одно показание по всем каналам с возможными пропусками.
// Отсутствующий ключ в Values означает пропущенное значение, а не ноль.
type Sample struct {
	Timestamp time.Time           `json:"timestamp"`
	Values    map[Channel]float64 `json:"values"`
}

// Value возвращает значение канала и признак его наличия
func (s Sample) Value(c Channel) (float64, bool) {
	v, ok := s.Values[c]
	return v, ok
}

// Series упорядоченная по времени последовательность показаний
type Series []Sample

// Latest возвращает самое свежее показание
func (s Series) Latest() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// TimeWindow интервал времени [Start, End], Start <= End
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains проверяет попадание в окно (обе границы включительно)
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Duration возвращает длину окна
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Selector символьный выбор диапазона времени
type Selector string

const (
	LastHour  Selector = "last_hour"
	LastDay   Selector = "last_day"
	LastWeek  Selector = "last_week"
	LastMonth Selector = "last_month"
)

// ParseSelector приводит пользовательское написание ("Last Hour", "LastHour",
// "last-hour") к канонической форме. Нераспознанные значения сохраняются как есть.
func ParseSelector(s string) Selector {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "lasthour":
		return LastHour
	case "lastday":
		return LastDay
	case "lastweek":
		return LastWeek
	case "lastmonth":
		return LastMonth
	}
	return Selector(s)
}

// RawReading запись из внешнего хранилища: {timestamp, readings}.
// Указатели позволяют отличить отсутствующее поле от нулевого значения.
type RawReading struct {
	Timestamp *float64            `json:"timestamp"`
	Readings  map[string]*float64 `json:"readings"`
}

// Direction направление тренда для отображения
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
	Stable  Direction = "stable"
)

// ChannelStatistics сводная статистика по каналу.
// Min/Max/Mean равны nil, если у канала нет ни одного значения.
type ChannelStatistics struct {
	Min       *float64  `json:"min"`
	Max       *float64  `json:"max"`
	Mean      *float64  `json:"mean"`
	StdDev    *float64  `json:"std_dev"`
	Count     int       `json:"count"`
	Trend     float64   `json:"trend"`
	Direction Direction `json:"direction"`
}

// Report результат запроса для слоя отображения
type Report struct {
	DeviceID    string                        `json:"device_id"`
	Selector    Selector                      `json:"selector"`
	Window      TimeWindow                    `json:"window"`
	Synthetic   bool                          `json:"synthetic"`
	Samples     Series                        `json:"samples"`
	Statistics  map[Channel]ChannelStatistics `json:"statistics"`
	Latest      *Sample                       `json:"latest,omitempty"`
	GeneratedAt time.Time                     `json:"generated_at"`
}
