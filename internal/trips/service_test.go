package trips

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/citibike-dashboard/internal/observability"
)

// --- mocks ---

type staticSource struct {
	tables      *Tables
	err         error
	calls       int
	invalidated int
}

func (s *staticSource) Tables(_ context.Context) (*Tables, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tables, nil
}

func (s *staticSource) Invalidate() { s.invalidated++ }

type fakeLabeler struct {
	fail map[string]bool
}

func (f *fakeLabeler) Label(_ context.Context, lat, lng float64) (string, error) {
	key := fmt.Sprintf("%.1f,%.1f", lat, lng)
	if f.fail[key] {
		return "", errors.New("lookup failed")
	}
	return "near " + key, nil
}

func sampleTables() *Tables {
	return &Tables{
		TripWeather: []TripWeatherRecord{
			{Date: day("2023-01-02"), TripCount: 20, AvgTempF: 35, Season: "Winter"},
			{Date: day("2023-01-01"), TripCount: 10, AvgTempF: 30, Season: "Winter"},
			{Date: day("2023-07-01"), TripCount: 90, AvgTempF: 85, Season: "Summer"},
		},
		Stations: []StationTripRecord{
			{StationName: "A", Lat: 40.0, Lng: -73.0, Season: "Winter"},
			{StationName: "A", Lat: 40.2, Lng: -73.2, Season: "Winter"},
			{StationName: "B", Lat: 41.0, Lng: -74.0, Season: "Winter"},
			{StationName: "S", Lat: 40.5, Lng: -73.5, Season: "Summer"},
		},
		RawTrips: []RawTripRecord{
			{StationName: "A", StartedAt: day("2023-01-01")},
			{StationName: "C", StartedAt: day("2023-01-01")},
			{StationName: "C", StartedAt: day("2023-01-02")},
		},
		RawTripsLoaded: true,
		MapDocument:    "<html>map</html>",
		Version:        "v1",
	}
}

func newTestService(src TableSource, policy CoordinatePolicy, labeler Labeler) *Service {
	return NewService(src, nil, policy, labeler, observability.NewMetricsForTesting())
}

// --- tests ---

func TestService_PipelineResolution(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, "", nil)

	p, err := svc.Pipeline("")
	require.NoError(t, err)
	assert.Equal(t, "weather", p.Name)

	p, err = svc.Pipeline("raw")
	require.NoError(t, err)
	assert.Equal(t, SourceRawTrips, p.SeriesSource)

	_, err = svc.Pipeline("nope")
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestService_SeriesFiltersBySeason(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, "", nil)
	ctx := context.Background()

	winter, err := svc.Series(ctx, "weather", "Winter")
	require.NoError(t, err)
	require.Len(t, winter.Points, 2)
	assert.Equal(t, 10, winter.Points[0].TripCount)
	assert.Equal(t, 20, winter.Points[1].TripCount)

	spring, err := svc.Series(ctx, "weather", "Spring")
	require.NoError(t, err)
	assert.Empty(t, spring.Points)

	all, err := svc.Series(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all.Points, 3)
}

func TestService_IdempotentForSameSelection(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, "", nil)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, "weather", "Winter")
	require.NoError(t, err)
	second, err := svc.Dashboard(ctx, "weather", "Winter")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestService_DashboardSections(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, "", &fakeLabeler{})

	d, err := svc.Dashboard(context.Background(), "", "Winter")
	require.NoError(t, err)

	assert.Equal(t, SeasonAll, orAll(""))
	assert.Equal(t, Season("Winter"), d.Season)
	assert.Equal(t, []Season{"Summer", "Winter"}, d.Seasons)
	assert.Equal(t, "v1", d.Dataset.Value.Version)

	require.True(t, d.Series.OK())
	assert.Len(t, d.Series.Value.Points, 2)

	require.True(t, d.MapDocument.OK())
	assert.Equal(t, "<html>map</html>", d.MapDocument.Value)

	require.True(t, d.TopStations.OK())
	assert.Equal(t, []StationCount{{"A", 2}, {"B", 1}}, d.TopStations.Value)

	require.True(t, d.Coordinates.OK())
	require.Len(t, d.Coordinates.Value.Stations, 2)
	assert.Equal(t, "near 40.1,-73.1", d.Coordinates.Value.Stations[0].Address)
}

func TestService_RawPipelineExcludesStationsWithoutCoordinates(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, CoordinatesExclude, nil)

	d, err := svc.Dashboard(context.Background(), "raw", SeasonAll)
	require.NoError(t, err)

	require.True(t, d.Series.OK())
	assert.False(t, d.Series.Value.TemperatureAvailable)
	assert.Len(t, d.Series.Value.Points, 2)

	require.True(t, d.TopStations.OK())
	assert.Equal(t, []StationCount{{"C", 2}, {"A", 1}}, d.TopStations.Value)

	require.True(t, d.Coordinates.OK())
	assert.Equal(t, []string{"C"}, d.Coordinates.Value.Excluded)
	require.Len(t, d.Coordinates.Value.Stations, 1)
	assert.Equal(t, "A", d.Coordinates.Value.Stations[0].StationName)
}

func TestService_RawPipelineCoordinatesIgnoreSeason(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, CoordinatesExclude, nil)

	// A only has Winter station rows; the raw ranking is not seasonal.
	coords, err := svc.Coordinates(context.Background(), "raw", "Summer")
	require.NoError(t, err)
	require.Len(t, coords.Stations, 1)
	assert.Equal(t, "A", coords.Stations[0].StationName)
	assert.InDelta(t, 40.1, coords.Stations[0].Lat, 1e-9)
	assert.Equal(t, []string{"C"}, coords.Excluded)

	// The weather pipeline still matches rows to the selected season.
	coords, err = svc.Coordinates(context.Background(), "weather", "Summer")
	require.NoError(t, err)
	require.Len(t, coords.Stations, 1)
	assert.Equal(t, "S", coords.Stations[0].StationName)
}

func TestService_MissingCoordinatesFailsOnlyItsSection(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, CoordinatesError, nil)

	d, err := svc.Dashboard(context.Background(), "raw", SeasonAll)
	require.NoError(t, err)

	assert.True(t, d.Series.OK())
	assert.True(t, d.TopStations.OK())
	assert.False(t, d.Coordinates.OK())
	assert.ErrorIs(t, d.Coordinates.Err(), ErrMissingCoordinates)
	assert.Contains(t, d.Coordinates.Error, "no coordinates")
}

func TestService_RawPipelineUnavailable(t *testing.T) {
	tables := sampleTables()
	tables.RawTrips = nil
	tables.RawTripsLoaded = false
	svc := newTestService(&staticSource{tables: tables}, "", nil)

	d, err := svc.Dashboard(context.Background(), "raw", SeasonAll)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Series.Err(), ErrRawTripsUnavailable)
	assert.ErrorIs(t, d.TopStations.Err(), ErrRawTripsUnavailable)
	assert.True(t, d.MapDocument.OK())
}

func TestService_LoadFailureReachesEverySection(t *testing.T) {
	src := &staticSource{err: fmt.Errorf("open kepler_map.html: %w", ErrResourceNotFound)}
	svc := newTestService(src, "", nil)

	d, err := svc.Dashboard(context.Background(), "", "")
	require.NoError(t, err)

	for _, sectionErr := range []error{d.Dataset.Err(), d.Series.Err(), d.MapDocument.Err(), d.TopStations.Err(), d.Coordinates.Err()} {
		assert.ErrorIs(t, sectionErr, ErrResourceNotFound)
	}
	assert.Contains(t, d.Series.Error, "missing")

	_, err = svc.Series(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestService_DuplicateDateFailsSeriesOnly(t *testing.T) {
	tables := sampleTables()
	tables.TripWeather = append(tables.TripWeather, TripWeatherRecord{Date: day("2023-01-01"), Season: "Winter"})
	svc := newTestService(&staticSource{tables: tables}, "", nil)

	d, err := svc.Dashboard(context.Background(), "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, d.Series.Err(), ErrParse)
	assert.True(t, d.TopStations.OK())
	assert.True(t, d.Coordinates.OK())
}

func TestService_LabelFailureKeepsMarker(t *testing.T) {
	labeler := &fakeLabeler{fail: map[string]bool{"41.0,-74.0": true}}
	svc := newTestService(&staticSource{tables: sampleTables()}, "", labeler)

	coords, err := svc.Coordinates(context.Background(), "", "Winter")
	require.NoError(t, err)
	require.Len(t, coords.Stations, 2)
	assert.NotEmpty(t, coords.Stations[0].Address)
	assert.Empty(t, coords.Stations[1].Address)
}

func TestService_TopStationsLimit(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, "", nil)

	top, err := svc.TopStations(context.Background(), "", SeasonAll, 1)
	require.NoError(t, err)
	assert.Equal(t, []StationCount{{"A", 2}}, top)
}

func TestService_Invalidate(t *testing.T) {
	src := &staticSource{tables: sampleTables()}
	svc := newTestService(src, "", nil)

	svc.Invalidate()
	assert.Equal(t, 1, src.invalidated)
}

func TestGuard_RecoversPanics(t *testing.T) {
	svc := newTestService(&staticSource{tables: sampleTables()}, "", nil)

	sec := guard(svc, "boom", func() (int, error) {
		var m map[string]int
		m["x"] = 1
		return 1, nil
	})

	assert.False(t, sec.OK())
	assert.Contains(t, sec.Error, "panicked")
}
