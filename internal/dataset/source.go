package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/citibike-dashboard/internal/common"
	"github.com/i474232898/citibike-dashboard/internal/trips"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// Fetcher opens resource locators: local paths, or http(s) URLs fetched with
// retries, exponential backoff and a circuit breaker.
type Fetcher struct {
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// NewFetcher creates a Fetcher. client is only used for URL locators.
func NewFetcher(client *http.Client) *Fetcher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dataset-source",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Fetcher{
		client: client,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
	}
}

// Open returns a reader for locator. Missing files and HTTP 404 responses
// wrap trips.ErrResourceNotFound.
func (f *Fetcher) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if !isURL(locator) {
		file, err := os.Open(locator)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", trips.ErrResourceNotFound, locator)
			}
			return nil, err
		}
		return file, nil
	}

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, locator, nil)
	}

	resp, err := f.doRequestWithResilience(ctx, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", trips.ErrResourceNotFound, locator)
	}
	return resp.Body, nil
}

func isURL(locator string) bool {
	return common.HasAnyPrefix(locator, "http://", "https://")
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. A 404 is returned as a response so callers can map it.
func (f *Fetcher) doRequestWithResilience(
	ctx context.Context,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if f.client == nil {
		return nil, errNoHTTPClient
	}
	if f.backoff.MaxRetries < 0 || f.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := f.circuit.Execute(func() (interface{}, error) {
			resp, execErr := f.client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return resp, nil
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, errServerError
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= f.backoff.MaxRetries {
			return nil, lastErr
		}

		delay := f.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > f.backoff.MaxInterval && f.backoff.MaxInterval > 0 {
			delay = f.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
