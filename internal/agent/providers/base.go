// Package providers implements agent.LLMProvider for concrete backends.
package providers

import (
	"context"
	"time"
)

// BaseProvider holds the retry policy shared by providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base with at least one attempt and a linear
// backoff step of retryDelay.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{name: name, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Name returns the provider name.
func (b *BaseProvider) Name() string {
	return b.name
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempts are used up. Attempt n waits n*retryDelay first.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable == nil || !isRetryable(lastErr) || attempt == b.maxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
