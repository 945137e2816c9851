package weather

import (
	"cloud.google.com/go/civil"
)

// Location represents the city whose history we ingest.
// City/Country must be provided; Timezone is forwarded to the archive API.
type Location struct {
	City     string `json:"city" yaml:"city"`
	Country  string `json:"country" yaml:"country"`
	Timezone string `json:"timezone" yaml:"timezone"`
}

// Key returns a canonical string key for this location.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// Coordinates is a resolved WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

// Series is an optional daily column. Provided distinguishes a column that
// was absent from the payload from one that was present but empty. A nil
// element is a day the upstream reported as null.
type Series[T any] struct {
	Provided bool
	Values   []*T
}

// Len returns the number of entries; absent series report zero.
func (s Series[T]) Len() int {
	return len(s.Values)
}

// At returns the i-th value, or nil when the series is absent.
func (s Series[T]) At(i int) *T {
	if !s.Provided || i >= len(s.Values) {
		return nil
	}
	return s.Values[i]
}

// DailySeries is a validated archive payload in columnar form.
type DailySeries struct {
	Latitude  float64
	Longitude float64
	Timezone  string

	Dates       []civil.Date
	TempMax     Series[float64]
	TempMin     Series[float64]
	WeatherCode Series[int]
}

// WeatherRecord is one day of observations as persisted in weather_daily.
type WeatherRecord struct {
	Date        civil.Date `json:"date"`
	TempMax     *float64   `json:"temp_max"`
	TempMin     *float64   `json:"temp_min"`
	WeatherCode *int       `json:"weather_code"`
}

// StoredRecord is a WeatherRecord together with its surrogate key.
type StoredRecord struct {
	ID int64 `json:"id"`
	WeatherRecord
}

// DailyVariables are the archive variables the pipeline requests.
var DailyVariables = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"weather_code",
}
