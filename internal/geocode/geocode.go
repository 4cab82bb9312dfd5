package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/citibike-dashboard/internal/observability"
)

// ErrNoAddress is returned when the geocoder has no result for a point.
var ErrNoAddress = errors.New("no address found")

// ReverseFunc resolves a coordinate to a formatted address.
type ReverseFunc func(lat, lng float64) (string, error)

// Labeler labels station coordinates with street addresses. Results are kept
// in an LRU cache; lookups go through a circuit breaker.
type Labeler struct {
	reverse ReverseFunc
	cache   gcache.Cache
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

// NewGoogleReverse returns a ReverseFunc backed by the Google Geocoding API.
func NewGoogleReverse(apiKey string) ReverseFunc {
	geocoder.ApiKey = apiKey
	return func(lat, lng float64) (string, error) {
		addrs, err := geocoder.GeocodingReverse(geocoder.Location{Latitude: lat, Longitude: lng})
		if err != nil {
			return "", err
		}
		if len(addrs) == 0 {
			return "", ErrNoAddress
		}
		addr := addrs[0]
		if addr.FormattedAddress != "" {
			return addr.FormattedAddress, nil
		}
		return addr.FormatAddress(), nil
	}
}

// NewLabeler creates a Labeler holding at most cacheSize addresses for ttl.
func NewLabeler(reverse ReverseFunc, cacheSize int, ttl time.Duration, metrics *observability.Metrics) *Labeler {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geocoder",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	builder := gcache.New(cacheSize).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}

	return &Labeler{
		reverse: reverse,
		cache:   builder.Build(),
		circuit: cb,
		metrics: metrics,
	}
}

// Label returns the address closest to lat/lng.
func (l *Labeler) Label(ctx context.Context, lat, lng float64) (string, error) {
	key := fmt.Sprintf("%.6f,%.6f", lat, lng)
	if v, err := l.cache.Get(key); err == nil {
		l.observe("cache_hit")
		return v.(string), nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	result, err := l.circuit.Execute(func() (interface{}, error) {
		return l.reverse(lat, lng)
	})
	if err != nil {
		if errors.Is(err, ErrNoAddress) {
			l.observe("empty")
		} else {
			l.observe("error")
		}
		return "", fmt.Errorf("reverse geocode %s: %w", key, err)
	}

	addr := strings.TrimSpace(result.(string))
	if addr == "" {
		l.observe("empty")
		return "", fmt.Errorf("reverse geocode %s: %w", key, ErrNoAddress)
	}

	// Only non-empty addresses are cached so a transient miss can be retried.
	_ = l.cache.Set(key, addr)
	l.observe("success")
	return addr, nil
}

func (l *Labeler) observe(outcome string) {
	if l.metrics != nil {
		l.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	}
}
