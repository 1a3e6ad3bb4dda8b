// Package retry wraps sethvargo/go-retry for the connections delta_notifier
// makes at startup (PostgreSQL, etcd). Notifications are never retried.
package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Config holds configuration for retry logic
type Config struct {
	MaxAttempts   uint64
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
}

// PostgreSQLDefaults is used to connect the audit store and data source
func PostgreSQLDefaults() *Config {
	return &Config{
		MaxAttempts:   10,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		JitterPercent: 10,
	}
}

// EtcdDefaults is used to connect the etcd configuration source
func EtcdDefaults() *Config {
	return &Config{
		MaxAttempts:   15,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      1 * time.Minute,
		JitterPercent: 15,
	}
}

// Backoff builds the capped, jittered exponential backoff described by c
func (c *Config) Backoff() retry.Backoff {
	backoff := retry.NewExponential(c.BaseDelay)
	backoff = retry.WithMaxRetries(c.MaxAttempts, backoff)
	backoff = retry.WithCappedDuration(c.MaxDelay, backoff)
	backoff = retry.WithJitterPercent(c.JitterPercent, backoff)
	return backoff
}

// Connect calls connect until it succeeds, the attempts are used up or ctx is done.
func Connect[T any](ctx context.Context, config *Config, name string, connect func(context.Context) (T, error)) (T, error) {
	var result T
	attempt := 0
	err := retry.Do(ctx, config.Backoff(), func(ctx context.Context) error {
		attempt++
		conn, err := connect(ctx)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"target":  name,
				"attempt": attempt,
			}).Warn("Connection failed, retrying...")
			return retry.RetryableError(err)
		}
		result = conn
		return nil
	})
	return result, err
}
