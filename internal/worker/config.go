package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the background job worker.
type Config struct {
	// Concurrency is the number of goroutines polling for jobs.
	// Default: 2
	Concurrency int

	// PollInterval is how often an idle goroutine checks for new jobs.
	// Default: 5 seconds
	PollInterval time.Duration

	// JobTimeout bounds a single job. Usage replays and sweeps are short,
	// so this is well under the ledger's reservation TTL.
	// Default: 1 minute
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age after which a 'running' job is assumed
	// abandoned by a crashed worker and recovered on startup.
	// Default: 10 minutes
	StaleJobThreshold time.Duration

	// SweepInterval is how often the scheduler enqueues a reservation
	// sweep. Zero disables scheduling.
	// Default: 1 minute
	SweepInterval time.Duration

	// SweepBatchSize caps reservations released per query.
	// Default: 500
	SweepBatchSize int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
		SweepInterval:     time.Minute,
		SweepBatchSize:    500,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 1*time.Second {
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	}
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.StaleJobThreshold < 1*time.Minute {
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	if c.SweepInterval != 0 && c.SweepInterval < 1*time.Second {
		return fmt.Errorf("sweep interval must be 0 or at least 1 second, got %v", c.SweepInterval)
	}
	if c.SweepBatchSize < 0 {
		return fmt.Errorf("sweep batch size must not be negative, got %d", c.SweepBatchSize)
	}
	return nil
}
