package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/i474232898/citibike-dashboard/internal/common"
	"github.com/i474232898/citibike-dashboard/internal/trips"
)

// Sources locates every input resource. RawTrips is optional.
type Sources struct {
	TripWeather string `validate:"required"`
	Stations    string `validate:"required"`
	MapDocument string `validate:"required"`
	RawTrips    string
}

// Opener opens a resource locator for reading.
type Opener interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// Loader reads and types all input resources.
type Loader struct {
	sources Sources
	schema  Schema
	opener  Opener
}

// NewLoader creates a new Loader.
func NewLoader(sources Sources, schema Schema, opener Opener) *Loader {
	return &Loader{
		sources: sources,
		schema:  schema,
		opener:  opener,
	}
}

// Load reads every configured resource. Any missing resource or parse
// failure aborts the whole load.
func (l *Loader) Load(ctx context.Context) (*trips.Tables, error) {
	t := &trips.Tables{}

	err := l.read(ctx, l.sources.TripWeather, func(r io.Reader) (err error) {
		t.TripWeather, err = ParseTripWeather(r, l.sources.TripWeather, l.schema.TimeSeries)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = l.read(ctx, l.sources.Stations, func(r io.Reader) (err error) {
		t.Stations, err = ParseStations(r, l.sources.Stations, l.schema.Stations)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = l.read(ctx, l.sources.MapDocument, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read %s: %w", l.sources.MapDocument, err)
		}
		t.MapDocument = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.sources.RawTrips != "" {
		err = l.read(ctx, l.sources.RawTrips, func(r io.Reader) (err error) {
			t.RawTrips, err = ParseRawTrips(r, l.sources.RawTrips, l.schema.RawTrips)
			return err
		})
		if err != nil {
			return nil, err
		}
		t.RawTripsLoaded = true
	}

	log.Printf("INFO: loaded %d daily rows, %d station rows, %d raw trips, map document of %d bytes",
		len(t.TripWeather), len(t.Stations), len(t.RawTrips), len(t.MapDocument))
	return t, nil
}

func (l *Loader) read(ctx context.Context, locator string, parse func(io.Reader) error) error {
	rc, err := l.opener.Open(ctx, locator)
	if err != nil {
		return err
	}
	defer rc.Close()
	return parse(rc)
}

// ParseTripWeather parses the daily trips/weather extract.
func ParseTripWeather(r io.Reader, resource string, cols TimeSeriesColumns) ([]trips.TripWeatherRecord, error) {
	df, err := readFrame(r, resource, cols.Date, cols.TripCount, cols.AvgTempF, cols.Season)
	if err != nil {
		return nil, err
	}

	dates := df.col(cols.Date)
	counts := df.col(cols.TripCount)
	temps := df.col(cols.AvgTempF)
	seasons := df.col(cols.Season)

	out := make([]trips.TripWeatherRecord, df.rows)
	for i := range out {
		row := i + 1

		date, err := parseDate(dates[i])
		if err != nil {
			return nil, &trips.ParseError{Resource: resource, Column: cols.Date, Row: row, Err: err}
		}
		count, err := parseCount(counts[i])
		if err != nil {
			return nil, &trips.ParseError{Resource: resource, Column: cols.TripCount, Row: row, Err: err}
		}
		temp, err := parseFloat(temps[i])
		if err != nil {
			return nil, &trips.ParseError{Resource: resource, Column: cols.AvgTempF, Row: row, Err: err}
		}

		out[i] = trips.TripWeatherRecord{
			Date:      date,
			TripCount: count,
			AvgTempF:  temp,
			Season:    parseSeason(seasons[i]),
		}
	}
	return out, nil
}

// ParseStations parses the station trip sample. Missing coordinates are
// kept as NaN and missing station names as ""; the aggregator skips both.
func ParseStations(r io.Reader, resource string, cols StationColumns) ([]trips.StationTripRecord, error) {
	df, err := readFrame(r, resource, cols.StationName, cols.Lat, cols.Lng, cols.Season)
	if err != nil {
		return nil, err
	}

	names := df.col(cols.StationName)
	lats := df.col(cols.Lat)
	lngs := df.col(cols.Lng)
	seasons := df.col(cols.Season)

	out := make([]trips.StationTripRecord, df.rows)
	for i := range out {
		row := i + 1

		lat, err := parseCoordinate(lats[i])
		if err != nil {
			return nil, &trips.ParseError{Resource: resource, Column: cols.Lat, Row: row, Err: err}
		}
		lng, err := parseCoordinate(lngs[i])
		if err != nil {
			return nil, &trips.ParseError{Resource: resource, Column: cols.Lng, Row: row, Err: err}
		}

		out[i] = trips.StationTripRecord{
			StationName: parseStationName(names[i]),
			Lat:         lat,
			Lng:         lng,
			Season:      parseSeason(seasons[i]),
		}
	}
	return out, nil
}

// ParseRawTrips parses the raw per-trip table.
func ParseRawTrips(r io.Reader, resource string, cols RawTripColumns) ([]trips.RawTripRecord, error) {
	df, err := readFrame(r, resource, cols.StationID, cols.StationName, cols.StartedAt)
	if err != nil {
		return nil, err
	}

	ids := df.col(cols.StationID)
	names := df.col(cols.StationName)
	started := df.col(cols.StartedAt)

	out := make([]trips.RawTripRecord, df.rows)
	for i := range out {
		ts, err := parseTimestamp(started[i])
		if err != nil {
			return nil, &trips.ParseError{Resource: resource, Column: cols.StartedAt, Row: i + 1, Err: err}
		}
		out[i] = trips.RawTripRecord{
			StationID:   ids[i],
			StationName: parseStationName(names[i]),
			StartedAt:   ts,
		}
	}
	return out, nil
}

// frame holds the required columns of a CSV as raw cell strings.
type frame struct {
	cols map[string][]string
	rows int
}

func (f frame) col(name string) []string { return f.cols[name] }

// readFrame loads a CSV with every column as a string and checks that the
// required headers are present. A file with headers but no rows is an empty
// frame, not an error.
func readFrame(r io.Reader, resource string, required ...string) (frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return frame{}, fmt.Errorf("read %s: %w", resource, err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	header, err := cr.Read()
	if err != nil {
		return frame{}, &trips.ParseError{Resource: resource, Err: fmt.Errorf("read header: %w", err)}
	}

	present := make(map[string]struct{}, len(header))
	for _, name := range header {
		present[name] = struct{}{}
	}
	for _, col := range required {
		if _, ok := present[col]; !ok {
			return frame{}, &trips.ParseError{
				Resource: resource,
				Column:   col,
				Err:      errors.New("column not found"),
			}
		}
	}

	f := frame{cols: make(map[string][]string, len(required))}

	// gota refuses a frame without rows.
	if _, err := cr.Read(); errors.Is(err, io.EOF) {
		for _, col := range required {
			f.cols[col] = []string{}
		}
		return f, nil
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return frame{}, &trips.ParseError{Resource: resource, Err: df.Err}
	}

	f.rows = df.Nrow()
	for _, col := range required {
		f.cols[col] = df.Col(col).Records()
	}
	return f, nil
}

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"1/2/2006",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

var timestampLayouts = []string{
	time.DateTime,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"1/2/2006 15:04",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// parseCount accepts integers and integral floats such as "12.0".
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		n = int(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func parseCoordinate(s string) (float64, error) {
	if common.IsMissing(s) {
		return math.NaN(), nil
	}
	return parseFloat(s)
}

func parseStationName(s string) string {
	if common.IsMissing(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

func parseSeason(s string) trips.Season {
	if common.IsMissing(s) {
		return ""
	}
	return trips.Season(strings.TrimSpace(s))
}
