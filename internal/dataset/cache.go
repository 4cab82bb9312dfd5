package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/citibike-dashboard/internal/observability"
	"github.com/i474232898/citibike-dashboard/internal/trips"
)

const tablesKey = "tables"

// TableLoader produces a fresh set of tables.
type TableLoader interface {
	Load(ctx context.Context) (*trips.Tables, error)
}

// Cache loads the tables once and serves them until they expire or are
// invalidated. Failed loads are never cached.
type Cache struct {
	loader  TableLoader
	store   gcache.Cache
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu sync.Mutex // serialises loads
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	ttl   time.Duration
	clock clockwork.Clock
}

// WithTTL expires cached tables after ttl. Zero keeps them until invalidated.
func WithTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) { o.ttl = ttl }
}

// WithClock overrides the clock used for expiry and load timestamps.
func WithClock(c clockwork.Clock) CacheOption {
	return func(o *cacheOptions) { o.clock = c }
}

// NewCache creates a Cache in front of loader.
func NewCache(loader TableLoader, metrics *observability.Metrics, opts ...CacheOption) *Cache {
	o := cacheOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	builder := gcache.New(1).Simple().Clock(o.clock)
	if o.ttl > 0 {
		builder = builder.Expiration(o.ttl)
	}

	return &Cache{
		loader:  loader,
		store:   builder.Build(),
		clock:   o.clock,
		metrics: metrics,
	}
}

// Tables returns the cached tables, loading them on first use or after
// expiry or invalidation.
func (c *Cache) Tables(ctx context.Context) (*trips.Tables, error) {
	if t, ok := c.cached(); ok {
		return t, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have loaded while we waited.
	if t, ok := c.cached(); ok {
		return t, nil
	}

	t, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(tablesKey, t); err != nil {
		return nil, fmt.Errorf("cache tables: %w", err)
	}
	return t, nil
}

// Invalidate drops the cached tables.
func (c *Cache) Invalidate() {
	c.store.Purge()
	log.Printf("INFO: dataset cache invalidated")
}

// Refresh reloads the tables and swaps them in only if the load succeeds,
// so readers keep the last good tables on failure.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.store.Set(tablesKey, t)
}

func (c *Cache) cached() (*trips.Tables, bool) {
	v, err := c.store.Get(tablesKey)
	if err != nil {
		return nil, false
	}
	t, ok := v.(*trips.Tables)
	return t, ok
}

func (c *Cache) load(ctx context.Context) (*trips.Tables, error) {
	start := c.clock.Now()
	t, err := c.loader.Load(ctx)
	elapsed := c.clock.Since(start)

	if c.metrics != nil {
		c.metrics.DatasetLoads.WithLabelValues(loadOutcome(err)).Inc()
		c.metrics.DatasetLoadDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		log.Printf("ERROR: dataset load failed after %s: %v", elapsed, err)
		return nil, err
	}

	t.Version = uuid.NewString()
	t.LoadedAt = c.clock.Now().UTC()

	if c.metrics != nil {
		c.metrics.DatasetRows.WithLabelValues("trip_weather").Set(float64(len(t.TripWeather)))
		c.metrics.DatasetRows.WithLabelValues("stations").Set(float64(len(t.Stations)))
		c.metrics.DatasetRows.WithLabelValues("raw_trips").Set(float64(len(t.RawTrips)))
	}
	log.Printf("INFO: dataset version %s loaded in %s", t.Version, elapsed)
	return t, nil
}

func loadOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, trips.ErrResourceNotFound):
		return "not_found"
	case errors.Is(err, trips.ErrParse):
		return "parse_error"
	default:
		return "error"
	}
}
