package trips

import (
	"time"
)

// Season is a coarse calendar label attached to time-series and station rows.
type Season string

// SeasonAll is the selector sentinel meaning "no filtering". It never appears in data.
const SeasonAll Season = "All"

// TripWeatherRecord is one row of the daily trips/weather extract.
type TripWeatherRecord struct {
	Date      time.Time `json:"date"` // midnight UTC
	TripCount int       `json:"tripCount"`
	AvgTempF  float64   `json:"avgTempF"`
	Season    Season    `json:"season"`
}

// StationTripRecord is one sampled trip origin observation.
type StationTripRecord struct {
	StationName string  `json:"stationName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Season      Season  `json:"season"`
}

// RawTripRecord is one row of the raw per-trip table.
type RawTripRecord struct {
	StationID   string    `json:"stationId"`
	StationName string    `json:"stationName"`
	StartedAt   time.Time `json:"startedAt"`
}

// Date truncates StartedAt to its calendar day.
func (r RawTripRecord) Date() time.Time {
	return calendarDay(r.StartedAt)
}

func (r TripWeatherRecord) season() Season { return r.Season }
func (r StationTripRecord) season() Season { return r.Season }

func (r StationTripRecord) stationName() string { return r.StationName }
func (r RawTripRecord) stationName() string     { return r.StationName }

// SeriesPoint is a single day in a derived series.
type SeriesPoint struct {
	Date      time.Time `json:"date"`
	TripCount int       `json:"tripCount"`
	AvgTempF  *float64  `json:"avgTempF,omitempty"`
}

// Series is the ordered-by-date output of series derivation.
type Series struct {
	Points []SeriesPoint `json:"points"`

	// TemperatureAvailable is false when the source carries no temperature
	// column; Points then have a nil AvgTempF.
	TemperatureAvailable bool `json:"temperatureAvailable"`
}

// StationCount is one entry of the top-N ranking.
type StationCount struct {
	StationName string `json:"stationName"`
	TripCount   int    `json:"tripCount"`
}

// StationCoordinate is the mean position of a ranked station.
type StationCoordinate struct {
	StationName string  `json:"stationName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Samples     int     `json:"samples"`
	Address     string  `json:"address,omitempty"`
}

// Tables is the immutable, loaded view of every input resource.
type Tables struct {
	TripWeather []TripWeatherRecord
	Stations    []StationTripRecord
	RawTrips    []RawTripRecord
	MapDocument string

	// RawTripsLoaded is false when no raw trip resource is configured.
	RawTripsLoaded bool

	Version  string
	LoadedAt time.Time
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
