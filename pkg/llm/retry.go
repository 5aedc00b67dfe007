package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"siteforge/pkg/logx"
)

// RetryConfig defines exponential backoff behavior for retried requests.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add random jitter to prevent thundering herd
}

// DefaultRetryConfig provides reasonable defaults for producer calls.
//
//nolint:gochecknoglobals // Package-level default configuration
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryableClient wraps a Client with classified-error retry logic.
type RetryableClient struct {
	client Client
	config RetryConfig
	logger *logx.Logger
}

// NewRetryableClient creates a retrying wrapper around client.
func NewRetryableClient(client Client, config RetryConfig) *RetryableClient {
	return &RetryableClient{
		client: client,
		config: config,
		logger: logx.NewLogger("llm-retry"),
	}
}

// Complete implements Client with retries on retryable classified errors.
func (r *RetryableClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Warn("⏳ Retrying %s request in %v (attempt %d/%d): %v",
				r.client.GetModelName(), delay, attempt, r.config.MaxRetries, lastErr)

			select {
			case <-ctx.Done():
				return CompletionResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := r.client.Complete(ctx, in)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		classified := WrapError(err)
		if !classified.IsRetryable() {
			return CompletionResponse{}, classified
		}
	}

	return CompletionResponse{}, WrapError(lastErr)
}

// GetModelName returns the wrapped client's model name.
func (r *RetryableClient) GetModelName() string {
	return r.client.GetModelName()
}

func (r *RetryableClient) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		// Up to 25% random jitter.
		delay += delay * 0.25 * rand.Float64() //nolint:gosec // Jitter does not need crypto randomness
	}
	return time.Duration(delay)
}
