package dataset

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/citibike-dashboard/internal/trips"
)

// TimeSeriesColumns names the columns of the daily trips/weather extract.
type TimeSeriesColumns struct {
	Date      string `yaml:"date" validate:"required"`
	TripCount string `yaml:"trip_count" validate:"required"`
	AvgTempF  string `yaml:"avg_temp_f" validate:"required"`
	Season    string `yaml:"season" validate:"required"`
}

// StationColumns names the columns of the station trip sample.
type StationColumns struct {
	StationName string `yaml:"start_station_name" validate:"required"`
	Lat         string `yaml:"start_lat" validate:"required"`
	Lng         string `yaml:"start_lng" validate:"required"`
	Season      string `yaml:"season" validate:"required"`
}

// RawTripColumns names the columns of the raw per-trip table.
type RawTripColumns struct {
	StationID   string `yaml:"start_station_id" validate:"required"`
	StationName string `yaml:"start_station_name" validate:"required"`
	StartedAt   string `yaml:"started_at" validate:"required"`
}

// Schema maps logical fields to CSV headers and lists the pipelines to serve.
type Schema struct {
	TimeSeries TimeSeriesColumns `yaml:"time_series"`
	Stations   StationColumns    `yaml:"stations"`
	RawTrips   RawTripColumns    `yaml:"raw_trips"`
	Pipelines  []trips.Pipeline  `yaml:"pipelines" validate:"required,min=1,dive"`
}

// DefaultSchema uses the column names of the published extracts.
func DefaultSchema() Schema {
	return Schema{
		TimeSeries: TimeSeriesColumns{
			Date:      "date",
			TripCount: "trip_count",
			AvgTempF:  "avg_temp_f",
			Season:    "season",
		},
		Stations: StationColumns{
			StationName: "start_station_name",
			Lat:         "start_lat",
			Lng:         "start_lng",
			Season:      "season",
		},
		RawTrips: RawTripColumns{
			StationID:   "start_station_id",
			StationName: "start_station_name",
			StartedAt:   "started_at",
		},
		Pipelines: trips.DefaultPipelines(),
	}
}

// LoadSchema reads a YAML schema file over the defaults. Fields the file
// leaves out keep their default value; a pipelines list replaces the default one.
func LoadSchema(path string) (Schema, error) {
	schema := DefaultSchema()
	if path == "" {
		return schema, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}

	if err := yaml.Unmarshal(data, &schema); err != nil {
		return Schema{}, fmt.Errorf("parse schema file %s: %w", path, err)
	}

	if err := schema.Validate(); err != nil {
		return Schema{}, fmt.Errorf("invalid schema file %s: %w", path, err)
	}
	return schema, nil
}

// Validate checks that every column is named and pipelines are well-formed
// and uniquely named.
func (s Schema) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Pipelines))
	for _, p := range s.Pipelines {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate pipeline name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
