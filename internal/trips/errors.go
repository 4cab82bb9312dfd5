package trips

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceNotFound is returned when a required input resource is missing.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrParse marks a missing or untypeable column, or a violated uniqueness invariant.
	ErrParse = errors.New("parse error")

	// ErrMissingCoordinates is returned when a ranked station has no coordinate rows.
	ErrMissingCoordinates = errors.New("missing coordinates")

	// ErrNoTemperature is returned when a pipeline has no temperature column.
	ErrNoTemperature = errors.New("temperature data unavailable")

	// ErrUnknownPipeline is returned for a pipeline name that is not configured.
	ErrUnknownPipeline = errors.New("unknown pipeline")

	// ErrRawTripsUnavailable is returned when a pipeline needs the raw trip table
	// but no raw trip resource is configured.
	ErrRawTripsUnavailable = errors.New("raw trip resource not configured")
)

// ParseError describes where a resource failed to parse.
type ParseError struct {
	Resource string
	Column   string
	Row      int // 1-based data row, 0 when not row-specific
	Err      error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Resource
	if e.Column != "" {
		msg += ": column " + e.Column
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match both ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}
