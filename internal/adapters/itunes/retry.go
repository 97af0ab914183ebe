package itunes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/metrics"
)

const (
	defaultMaxRetries = 3
	defaultBackoffMs  = 500
	maxBodyBytes      = 4 << 20
)

// fetch GETs rawURL through the breaker and returns the body of a 200 response.
func (c *Client) fetch(ctx context.Context, operation, rawURL string) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("itunes adapter: failed to create %s request: %w", operation, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.doRequestWithRetry(req)
		if err != nil {
			return nil, fmt.Errorf("itunes adapter: %s request failed: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("itunes adapter: %w", ports.CatalogStatusError{Operation: operation, StatusCode: resp.StatusCode})
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("itunes adapter: read %s body: %w", operation, err)
		}
		return b, nil
	})

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.CatalogRequests.WithLabelValues(operation, result).Inc()

	if err != nil {
		return nil, breakerError(err)
	}
	return body, nil
}

func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	maxRetries := c.maxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	baseBackoff := c.baseBackoff
	if baseBackoff <= 0 {
		baseBackoff = time.Duration(defaultBackoffMs) * time.Millisecond
	}

	ctx := req.Context()
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("itunes adapter: request canceled: %w", err)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("itunes adapter: rate limiter: %w", err)
			}
		}

		// #nosec G107 -- URL built from the configured catalog base URL
		resp, err := c.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			return resp, err
		}

		attemptNum := attempt + 1
		if err != nil {
			c.logger.Warn().Int("attempt", attemptNum).Int("max", maxRetries).Err(err).Msg("retrying after error")
		} else if resp != nil {
			c.logger.Warn().Int("attempt", attemptNum).Int("max", maxRetries).Int("status", resp.StatusCode).Msg("retrying after status")
			_ = resp.Body.Close()
		}

		if attempt == maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("itunes adapter: request failed after %d attempts: %w", maxRetries, err)
			}
			if resp != nil {
				return nil, fmt.Errorf("itunes adapter: request failed after %d attempts: status %d", maxRetries, resp.StatusCode)
			}
			return nil, fmt.Errorf("itunes adapter: request failed after %d attempts", maxRetries)
		}

		backoff := baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}

		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("itunes adapter: request failed after %d attempts", maxRetries)
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, true
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		until := time.Until(when)
		if until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("itunes adapter: request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
