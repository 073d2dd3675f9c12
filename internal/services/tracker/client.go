package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amaumene/announcarr/internal/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrNotFound marks a release that is permanently gone from the tracker
var ErrNotFound = errors.New("release not found on tracker")

// maxTorrentSize caps the body read from the tracker
const maxTorrentSize = 15 * 1024 * 1024 // 15MB

// errBodyTooLarge is transient for the caller but not retried in-attempt
var errBodyTooLarge = errors.New("download body too large")

// Client downloads release files from trackers
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	attempts   int
	logger     *logrus.Logger
}

// NewClient creates a new tracker client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive")
	}
	if cfg.FetchRate <= 0 {
		return nil, fmt.Errorf("fetch rate must be positive")
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(cfg.FetchRate), 1),
		attempts: max(cfg.FetchAttempts, 1),
		logger:   logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "tracker",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing release is a valid answer from a healthy tracker
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Tracker circuit breaker changed state")
		},
	})

	return c, nil
}

// statusError is a non-OK HTTP answer other than not-found
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.code)
}

// Fetch downloads the file behind url. Errors wrapping ErrNotFound are
// permanent; every other error is transient.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var data []byte
		operation := func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}

			body, err := c.get(ctx, url)
			if err != nil {
				var se *statusError
				if errors.Is(err, ErrNotFound) || errors.Is(err, errBodyTooLarge) || (errors.As(err, &se) && se.code < 500) {
					return backoff.Permanent(err)
				}
				c.logger.WithError(err).WithField("url", url).Debug("Tracker request failed, retrying")
				return err
			}
			data = body
			return nil
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 500 * time.Millisecond
		policy.MaxInterval = 5 * time.Second

		err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.attempts-1)), ctx))
		return data, err
	})
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	req.Header.Set("User-Agent", "announcarr/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	if len(data) > maxTorrentSize {
		return nil, fmt.Errorf("%w: over %d bytes", errBodyTooLarge, maxTorrentSize)
	}

	c.logger.WithFields(logrus.Fields{
		"url":        url,
		"size_bytes": len(data),
	}).Debug("Tracker file downloaded")

	return data, nil
}
