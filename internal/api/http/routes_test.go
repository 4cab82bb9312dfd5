package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/citibike-dashboard/internal/observability"
	"github.com/i474232898/citibike-dashboard/internal/trips"
)

// --- mocks ---

type stubSource struct {
	tables      *trips.Tables
	err         error
	invalidated int
}

func (s *stubSource) Tables(_ context.Context) (*trips.Tables, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tables, nil
}

func (s *stubSource) Invalidate() { s.invalidated++ }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testTables() *trips.Tables {
	return &trips.Tables{
		TripWeather: []trips.TripWeatherRecord{
			{Date: day("2023-01-01"), TripCount: 10, AvgTempF: 30, Season: "Winter"},
			{Date: day("2023-01-02"), TripCount: 20, AvgTempF: 35, Season: "Winter"},
			{Date: day("2023-07-01"), TripCount: 90, AvgTempF: 85, Season: "Summer"},
		},
		Stations: []trips.StationTripRecord{
			{StationName: "A", Lat: 40.0, Lng: -73.0, Season: "Winter"},
			{StationName: "A", Lat: 40.2, Lng: -73.2, Season: "Winter"},
			{StationName: "B", Lat: 41.0, Lng: -74.0, Season: "Summer"},
		},
		MapDocument: `<html><body><div id="map">"kepler"</div></body></html>`,
		Version:     "v1",
		LoadedAt:    time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func newTestApp(t *testing.T, src trips.TableSource, policy trips.CoordinatePolicy) *fiber.App {
	t.Helper()
	svc := trips.NewService(src, nil, policy, nil, observability.NewMetricsForTesting())
	return NewApp(svc)
}

func get(t *testing.T, app *fiber.App, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// --- tests ---

func TestHealth(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"citibike-dashboard"}`, string(body))
}

func TestSeasons(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/seasons")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["All","Summer","Winter"]`, string(body))
}

func TestSeries(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/series?season=Winter")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Season string `json:"season"`
		Points []struct {
			TripCount int `json:"tripCount"`
		} `json:"points"`
		TemperatureAvailable bool `json:"temperatureAvailable"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "Winter", got.Season)
	assert.True(t, got.TemperatureAvailable)
	require.Len(t, got.Points, 2)
	assert.Equal(t, 10, got.Points[0].TripCount)
}

func TestEmptySeasonIsNotAnError(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/stations/top?season=Spring")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"season":"Spring","stations":[]}`, string(body))

	resp, body = get(t, app, "/api/v1/series?season=Spring")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"points":[]`)
}

func TestTopStations(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/stations/top?limit=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"season":"All","stations":[{"stationName":"A","tripCount":2}]}`, string(body))
}

func TestTopStationsLimitValidation(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	for _, q := range []string{"limit=0", "limit=101", "limit=ten"} {
		resp, body := get(t, app, "/api/v1/stations/top?"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Contains(t, string(body), `"error":true`)
	}
}

func TestSeasonValidation(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, _ := get(t, app, "/api/v1/series?season="+strings.Repeat("x", 65))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownPipeline(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/series?pipeline=nope")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "unknown pipeline")

	resp, _ = get(t, app, "/?pipeline=nope")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing resource", fmt.Errorf("open kepler_map.html: %w", trips.ErrResourceNotFound), http.StatusServiceUnavailable},
		{"parse error", &trips.ParseError{Resource: "daily_trips_weather.csv", Column: "date"}, http.StatusUnprocessableEntity},
		{"other", fmt.Errorf("disk failure"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &stubSource{err: tt.err}, "")
			resp, body := get(t, app, "/api/v1/series")
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Contains(t, string(body), `"error":true`)
		})
	}
}

func TestCoordinates(t *testing.T) {
	tables := testTables()
	tables.Stations = append(tables.Stations, trips.StationTripRecord{StationName: "C", Lat: math.NaN(), Lng: math.NaN(), Season: "Winter"})

	app := newTestApp(t, &stubSource{tables: tables}, trips.CoordinatesExclude)
	resp, body := get(t, app, "/api/v1/stations/coordinates?season=Winter")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Stations []trips.StationCoordinate `json:"stations"`
		Excluded []string                  `json:"excluded"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Stations, 1)
	assert.Equal(t, "A", got.Stations[0].StationName)
	assert.InDelta(t, 40.1, got.Stations[0].Lat, 1e-9)
	assert.Equal(t, []string{"C"}, got.Excluded)

	app = newTestApp(t, &stubSource{tables: tables}, trips.CoordinatesError)
	resp, _ = get(t, app, "/api/v1/stations/coordinates?season=Winter")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDashboardJSON(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/dashboard?season=Summer")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"season":"Summer"`)
	assert.NotContains(t, string(body), "kepler")
}

func TestDataset(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/api/v1/dataset")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"version":"v1"`)
	assert.Contains(t, string(body), `"stationRows":3`)
}

func TestInvalidate(t *testing.T) {
	src := &stubSource{tables: testTables()}
	app := newTestApp(t, src, "")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/dataset/invalidate", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, src.invalidated)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, &stubSource{tables: testTables()}, "")

	resp, body := get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
