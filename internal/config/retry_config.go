// Package config defines retry configuration for the completion gateway.
package config

import (
	"time"
)

// RetryConfig holds the completion gateway's retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// MinInterval is the lower bound of a single randomized wait.
	MinInterval time.Duration
	// MaxInterval is the upper bound of a single randomized wait.
	MaxInterval time.Duration
	// MaxElapsed caps the total time spent retrying one call.
	MaxElapsed time.Duration
}

// GetRetryConfig returns the retry configuration appropriate for the current environment.
// In test environments the waits are shortened so that suites stay fast.
func (c Config) GetRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{
			MaxAttempts: c.CompletionMaxAttempts,
			MinInterval: time.Millisecond,
			MaxInterval: 10 * time.Millisecond,
			MaxElapsed:  time.Second,
		}
	}
	return RetryConfig{
		MaxAttempts: c.CompletionMaxAttempts,
		MinInterval: c.CompletionBackoffMin,
		MaxInterval: c.CompletionBackoffMax,
		MaxElapsed:  c.CompletionMaxElapsed,
	}
}
