package trips

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/i474232898/citibike-dashboard/internal/observability"
)

// Section names, used in logs and metrics.
const (
	SectionSeries      = "trips_vs_temp"
	SectionMap         = "spatial_map"
	SectionTopStations = "top_stations"
	SectionCoordinates = "station_locations"
)

// Section is the outcome of computing one dashboard section. A failed section
// carries a user-readable Error and the zero (or partial) Value.
type Section[T any] struct {
	Value T      `json:"value"`
	Error string `json:"error,omitempty"`

	err error
}

// Err returns the failure behind the section, if any.
func (s Section[T]) Err() error { return s.err }

// OK reports whether the section computed successfully.
func (s Section[T]) OK() bool { return s.err == nil }

// Coordinates is the map-marker view of the top stations.
type Coordinates struct {
	Stations []StationCoordinate `json:"stations"`
	// Excluded lists ranked stations dropped for lack of coordinate rows.
	Excluded []string `json:"excluded,omitempty"`
}

// DatasetInfo summarises the currently cached tables.
type DatasetInfo struct {
	Version          string    `json:"version"`
	LoadedAt         time.Time `json:"loadedAt"`
	TripWeatherRows  int       `json:"tripWeatherRows"`
	StationRows      int       `json:"stationRows"`
	RawTripRows      int       `json:"rawTripRows"`
	RawTripsLoaded   bool      `json:"rawTripsLoaded"`
	MapDocumentBytes int       `json:"mapDocumentBytes"`
}

// Dashboard holds every data section for one pipeline and season selection.
type Dashboard struct {
	Pipeline Pipeline `json:"pipeline"`
	Season   Season   `json:"season"`
	Seasons  []Season `json:"seasons"`

	Dataset     Section[DatasetInfo]    `json:"dataset"`
	Series      Section[Series]         `json:"series"`
	MapDocument Section[string]         `json:"-"`
	TopStations Section[[]StationCount] `json:"topStations"`
	Coordinates Section[Coordinates]    `json:"coordinates"`
}

// Service runs the filter and aggregation passes against cached tables.
type Service struct {
	source    TableSource
	pipelines []Pipeline
	policy    CoordinatePolicy
	labeler   Labeler
	metrics   *observability.Metrics
}

// NewService creates a new Service. An empty pipeline list falls back to
// DefaultPipelines; labeler may be nil.
func NewService(source TableSource, pipelines []Pipeline, policy CoordinatePolicy, labeler Labeler, metrics *observability.Metrics) *Service {
	if len(pipelines) == 0 {
		pipelines = DefaultPipelines()
	}
	if policy == "" {
		policy = CoordinatesExclude
	}
	return &Service{
		source:    source,
		pipelines: pipelines,
		policy:    policy,
		labeler:   labeler,
		metrics:   metrics,
	}
}

// Pipelines returns the configured pipelines; the first one is the default.
func (s *Service) Pipelines() []Pipeline {
	out := make([]Pipeline, len(s.pipelines))
	copy(out, s.pipelines)
	return out
}

// Pipeline resolves a pipeline by name. An empty name selects the default.
func (s *Service) Pipeline(name string) (Pipeline, error) {
	if name == "" {
		return s.pipelines[0], nil
	}
	for _, p := range s.pipelines {
		if p.Name == name {
			return p, nil
		}
	}
	return Pipeline{}, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
}

// Invalidate drops the cached tables; the next request reloads them.
func (s *Service) Invalidate() {
	s.source.Invalidate()
}

// Dataset describes the cached tables, loading them if needed.
func (s *Service) Dataset(ctx context.Context) (DatasetInfo, error) {
	t, err := s.source.Tables(ctx)
	if err != nil {
		return DatasetInfo{}, err
	}
	return datasetInfo(t), nil
}

// Seasons returns the seasons offered by the selector, excluding SeasonAll.
func (s *Service) Seasons(ctx context.Context) ([]Season, error) {
	t, err := s.source.Tables(ctx)
	if err != nil {
		return nil, err
	}
	return Seasons(t.Stations), nil
}

// Series derives the trips/temperature series for a pipeline and season.
func (s *Service) Series(ctx context.Context, pipeline string, season Season) (Series, error) {
	p, t, err := s.prepare(ctx, pipeline)
	if err != nil {
		return Series{}, err
	}
	return seriesFor(t, p, orAll(season))
}

// TopStations ranks stations for a pipeline and season. A limit of zero uses
// the pipeline's top-N.
func (s *Service) TopStations(ctx context.Context, pipeline string, season Season, limit int) ([]StationCount, error) {
	p, t, err := s.prepare(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = p.topN()
	}
	return rankingFor(t, p, orAll(season), limit)
}

// Coordinates averages the coordinates of the pipeline's top stations.
func (s *Service) Coordinates(ctx context.Context, pipeline string, season Season) (Coordinates, error) {
	p, t, err := s.prepare(ctx, pipeline)
	if err != nil {
		return Coordinates{}, err
	}
	return s.coordinatesFor(ctx, t, p, orAll(season))
}

// Dashboard computes every section independently. Only an unknown pipeline
// is returned as an error; load and aggregation failures are recorded on the
// affected sections so the rest of the page still renders.
func (s *Service) Dashboard(ctx context.Context, pipeline string, season Season) (Dashboard, error) {
	p, err := s.Pipeline(pipeline)
	if err != nil {
		return Dashboard{}, err
	}
	season = orAll(season)
	if s.metrics != nil {
		s.metrics.DashboardRenders.WithLabelValues(p.Name).Inc()
	}

	d := Dashboard{Pipeline: p, Season: season, Seasons: []Season{}}

	t, loadErr := s.source.Tables(ctx)
	if loadErr != nil {
		log.Printf("ERROR: dataset load failed: %v", loadErr)
		loadErr = fmt.Errorf("load dataset: %w", loadErr)
		d.Dataset = failedSection[DatasetInfo](s, "dataset", loadErr)
		d.Series = failedSection[Series](s, SectionSeries, loadErr)
		d.MapDocument = failedSection[string](s, SectionMap, loadErr)
		d.TopStations = failedSection[[]StationCount](s, SectionTopStations, loadErr)
		d.Coordinates = failedSection[Coordinates](s, SectionCoordinates, loadErr)
		return d, nil
	}

	d.Seasons = Seasons(t.Stations)
	d.Dataset = Section[DatasetInfo]{Value: datasetInfo(t)}
	d.Series = guard(s, SectionSeries, func() (Series, error) {
		return seriesFor(t, p, season)
	})
	d.MapDocument = guard(s, SectionMap, func() (string, error) {
		return t.MapDocument, nil
	})
	d.TopStations = guard(s, SectionTopStations, func() ([]StationCount, error) {
		return rankingFor(t, p, season, p.topN())
	})
	d.Coordinates = guard(s, SectionCoordinates, func() (Coordinates, error) {
		return s.coordinatesFor(ctx, t, p, season)
	})

	return d, nil
}

func (s *Service) prepare(ctx context.Context, pipeline string) (Pipeline, *Tables, error) {
	p, err := s.Pipeline(pipeline)
	if err != nil {
		return Pipeline{}, nil, err
	}
	t, err := s.source.Tables(ctx)
	if err != nil {
		return Pipeline{}, nil, err
	}
	if s.metrics != nil {
		s.metrics.DashboardRenders.WithLabelValues(p.Name).Inc()
	}
	return p, t, nil
}

func (s *Service) coordinatesFor(ctx context.Context, t *Tables, p Pipeline, season Season) (Coordinates, error) {
	ranking, err := rankingFor(t, p, season, p.topN())
	if err != nil {
		return Coordinates{}, err
	}

	// Raw trips carry no season, so their ranking spans every station row.
	rows := t.Stations
	if p.RankingSource != SourceRawTrips {
		rows = FilterBySeason(t.Stations, season)
	}

	coords, missing, err := StationCoordinates(ranking, rows, s.policy)
	if err != nil {
		return Coordinates{}, err
	}

	if s.labeler != nil {
		for i := range coords {
			addr, err := s.labeler.Label(ctx, coords[i].Lat, coords[i].Lng)
			if err != nil {
				// Labels are decoration; the marker is still valid without one.
				log.Printf("WARN: address lookup failed for %q: %v", coords[i].StationName, err)
				continue
			}
			coords[i].Address = addr
		}
	}

	return Coordinates{Stations: coords, Excluded: missing}, nil
}

func seriesFor(t *Tables, p Pipeline, season Season) (Series, error) {
	switch p.SeriesSource {
	case SourceTimeSeries:
		return DeriveSeries(FilterBySeason(t.TripWeather, season))
	case SourceRawTrips:
		if !t.RawTripsLoaded {
			return Series{}, ErrRawTripsUnavailable
		}
		return DailyCounts(t.RawTrips), nil
	default:
		return Series{}, fmt.Errorf("pipeline %s: unsupported series source %q", p.Name, p.SeriesSource)
	}
}

func rankingFor(t *Tables, p Pipeline, season Season, n int) ([]StationCount, error) {
	switch p.RankingSource {
	case SourceStations:
		return TopStations(FilterBySeason(t.Stations, season), n), nil
	case SourceRawTrips:
		if !t.RawTripsLoaded {
			return nil, ErrRawTripsUnavailable
		}
		return TopStations(t.RawTrips, n), nil
	default:
		return nil, fmt.Errorf("pipeline %s: unsupported ranking source %q", p.Name, p.RankingSource)
	}
}

func orAll(season Season) Season {
	if season == "" {
		return SeasonAll
	}
	return season
}

func datasetInfo(t *Tables) DatasetInfo {
	return DatasetInfo{
		Version:          t.Version,
		LoadedAt:         t.LoadedAt,
		TripWeatherRows:  len(t.TripWeather),
		StationRows:      len(t.Stations),
		RawTripRows:      len(t.RawTrips),
		RawTripsLoaded:   t.RawTripsLoaded,
		MapDocumentBytes: len(t.MapDocument),
	}
}

// guard runs fn as an isolated section: errors and panics are logged,
// counted, and captured on the returned Section.
func guard[T any](s *Service, name string, fn func() (T, error)) (sec Section[T]) {
	defer func() {
		if r := recover(); r != nil {
			sec = failedSection[T](s, name, fmt.Errorf("section %s panicked: %v", name, r))
		}
	}()

	v, err := fn()
	if err != nil {
		sec = failedSection[T](s, name, err)
		sec.Value = v
		return sec
	}
	return Section[T]{Value: v}
}

func failedSection[T any](s *Service, name string, err error) Section[T] {
	log.Printf("ERROR: section %s failed: %v", name, err)
	if s.metrics != nil {
		s.metrics.SectionFailures.WithLabelValues(name).Inc()
	}
	return Section[T]{Error: userMessage(err), err: err}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrResourceNotFound):
		return "A required data file is missing: " + err.Error()
	case errors.Is(err, ErrParse):
		return "The data could not be read: " + err.Error()
	case errors.Is(err, ErrMissingCoordinates):
		return "A top station has no coordinates for this selection: " + err.Error()
	case errors.Is(err, ErrNoTemperature):
		return "Temperature data is not available for this view; no temperatures are shown."
	case errors.Is(err, ErrRawTripsUnavailable):
		return "This view needs the raw trip table, which is not configured."
	default:
		return err.Error()
	}
}
