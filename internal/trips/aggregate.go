package trips

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"
)

// DeriveSeries orders the time-series records by date ascending.
// A repeated date is reported as a ParseError rather than merged or dropped.
func DeriveSeries(records []TripWeatherRecord) (Series, error) {
	sorted := make([]TripWeatherRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	points := make([]SeriesPoint, 0, len(sorted))
	for i, r := range sorted {
		if i > 0 && r.Date.Equal(sorted[i-1].Date) {
			return Series{}, &ParseError{
				Resource: "time series",
				Column:   "date",
				Err:      fmt.Errorf("duplicate date %s", r.Date.Format(time.DateOnly)),
			}
		}
		temp := r.AvgTempF
		points = append(points, SeriesPoint{
			Date:      r.Date,
			TripCount: r.TripCount,
			AvgTempF:  &temp,
		})
	}

	return Series{Points: points, TemperatureAvailable: true}, nil
}

// DailyCounts derives a per-day trip count series from raw trips. The raw
// table carries no temperature, so the result never has one.
func DailyCounts(records []RawTripRecord) Series {
	counts := make(map[time.Time]int)
	for _, r := range records {
		counts[r.Date()]++
	}

	days := make([]time.Time, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	points := make([]SeriesPoint, 0, len(days))
	for _, d := range days {
		points = append(points, SeriesPoint{Date: d, TripCount: counts[d]})
	}
	return Series{Points: points, TemperatureAvailable: false}
}

type stationNamed interface {
	stationName() string
}

// TopStations counts station name occurrences and returns the n most frequent,
// descending. Equal counts keep the order in which stations first appear.
// Rows without a station name are not counted.
func TopStations[R stationNamed](records []R, n int) []StationCount {
	if n <= 0 || len(records) == 0 {
		return []StationCount{}
	}

	index := make(map[string]int)
	counts := []StationCount{}
	for _, r := range records {
		name := r.stationName()
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(counts)
			index[name] = i
			counts = append(counts, StationCount{StationName: name})
		}
		counts[i].TripCount++
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].TripCount > counts[j].TripCount
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// CoordinatePolicy decides what happens to a ranked station without coordinates.
type CoordinatePolicy string

const (
	// CoordinatesExclude drops the station and logs a warning.
	CoordinatesExclude CoordinatePolicy = "exclude"
	// CoordinatesError fails with ErrMissingCoordinates.
	CoordinatesError CoordinatePolicy = "error"
)

// StationCoordinates averages the coordinates of every ranked station, in
// ranking order. Non-finite coordinate values are ignored. Stations with no
// usable rows are handled according to policy and returned in missing.
func StationCoordinates(ranking []StationCount, stations []StationTripRecord, policy CoordinatePolicy) (coords []StationCoordinate, missing []string, err error) {
	type sums struct {
		lat, lng float64
		n        int
	}

	wanted := make(map[string]*sums, len(ranking))
	for _, r := range ranking {
		wanted[r.StationName] = &sums{}
	}

	for _, s := range stations {
		acc, ok := wanted[s.StationName]
		if !ok || !finite(s.Lat) || !finite(s.Lng) {
			continue
		}
		acc.lat += s.Lat
		acc.lng += s.Lng
		acc.n++
	}

	coords = make([]StationCoordinate, 0, len(ranking))
	for _, r := range ranking {
		acc := wanted[r.StationName]
		if acc.n == 0 {
			if policy == CoordinatesError {
				return nil, nil, fmt.Errorf("%w: station %q", ErrMissingCoordinates, r.StationName)
			}
			log.Printf("WARN: station %q has no coordinate rows; excluded from map", r.StationName)
			missing = append(missing, r.StationName)
			continue
		}
		n := float64(acc.n)
		coords = append(coords, StationCoordinate{
			StationName: r.StationName,
			Lat:         acc.lat / n,
			Lng:         acc.lng / n,
			Samples:     acc.n,
		})
	}

	return coords, missing, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Temperatures returns the per-point temperatures in date order, or
// ErrNoTemperature when the series came from a source without temperatures.
func (s Series) Temperatures() ([]float64, error) {
	if !s.TemperatureAvailable {
		return nil, ErrNoTemperature
	}
	out := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		if p.AvgTempF == nil {
			return nil, ErrNoTemperature
		}
		out = append(out, *p.AvgTempF)
	}
	return out, nil
}
