package trips

import (
	"context"
)

// TableSource hands out the loaded input tables. Implementations cache the
// result; Invalidate forces the next call to reload.
type TableSource interface {
	Tables(ctx context.Context) (*Tables, error)
	Invalidate()
}

// Labeler resolves a human-readable address for a coordinate.
type Labeler interface {
	Label(ctx context.Context, lat, lng float64) (string, error)
}
