package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/logger"
)

// maxResponseBody bounds how much of a response body is kept for diagnostics
const maxResponseBody = 4 << 10

// HTTPResponse is the outcome of a delivered request
type HTTPResponse struct {
	StatusCode int
	Body       string
}

// HTTPRetryConfig configures the exponential backoff of retryable responses
type HTTPRetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// HTTPClient defines an interface for HTTP client operations to enable mocking
//
//go:generate mockgen -source=http.go -destination=../mocks/http.go -package=mocks -mock_names=HTTPClient=MockHTTPClient
type HTTPClient interface {
	// Post sends body with the given headers. Rate limiting (429), server errors (5xx)
	// and network errors are retried with backoff; other non-2xx responses fail immediately.
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*HTTPResponse, error)
}

// RealHTTPClient implements HTTPClient using the standard http package
type RealHTTPClient struct {
	client *http.Client
	retry  HTTPRetryConfig
}

// NewHTTPClient creates a new real HTTP client
func NewHTTPClient(timeout time.Duration, retry HTTPRetryConfig) HTTPClient {
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 2 * time.Second
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = 30 * time.Second
	}
	if retry.MaxElapsedTime <= 0 {
		retry.MaxElapsedTime = time.Minute
	}

	return &RealHTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		retry: retry,
	}
}

// Post sends body with exponential backoff retry
func (c *RealHTTPClient) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*HTTPResponse, error) {
	var result *HTTPResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Network errors are retryable
			return fmt.Errorf("failed to perform request: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", zap.Error(err), zap.String("url", url))
			}
		}()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		result = &HTTPResponse{StatusCode: resp.StatusCode, Body: string(respBody)}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			logger.Warn("rate limited, retrying with backoff", zap.String("url", url))
			return fmt.Errorf("rate limited (429), retrying")
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("server error %d, retrying", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, result.Body))
		}

		return nil
	}

	// Configure exponential backoff
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.MaxElapsedTime = c.retry.MaxElapsedTime
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5 // Add jitter to prevent thundering herd

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return result, fmt.Errorf("request failed after retries: %w", err)
	}

	return result, nil
}
