package ccng

import "time"

// Config holds configuration for the Controller.
type Config struct {
	// Concurrency is the maximum number of operations processed concurrently.
	Concurrency int

	// ClaimInterval is how often workers check the store for due operations.
	ClaimInterval time.Duration

	// DefaultPollingInterval is the delay before the next poll of an
	// in-progress operation when the broker does not suggest one.
	DefaultPollingInterval time.Duration

	// MinPollingInterval and MaxPollingInterval clamp broker-suggested
	// Retry-After values.
	MinPollingInterval time.Duration
	MaxPollingInterval time.Duration

	// DefaultMaxDuration bounds an operation's total wall-clock time when
	// the service plan does not declare a maximum polling duration.
	DefaultMaxDuration time.Duration

	// StaleClaimThreshold is how long a claimed operation may go without
	// progress before the clock resets it to pending.
	StaleClaimThreshold time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:            4,
		ClaimInterval:          1 * time.Second,
		DefaultPollingInterval: 60 * time.Second,
		MinPollingInterval:     1 * time.Second,
		MaxPollingInterval:     1 * time.Hour,
		DefaultMaxDuration:     7 * 24 * time.Hour,
		StaleClaimThreshold:    5 * time.Minute,
		ShutdownTimeout:        30 * time.Second,
	}
}
