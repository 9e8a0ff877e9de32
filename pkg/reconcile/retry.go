package reconcile

import (
	"strings"
	"time"
)

// RetryPolicy decides which transaction errors are worth retrying and how
// long to wait between attempts. The signature table is data so tests can
// swap it.
type RetryPolicy struct {
	MaxAttempts int
	BackoffStep time.Duration
	Patterns    []string
}

// DefaultRetryPolicy retries contention errors up to 3 attempts with
// linearly increasing backoff. The table carries both PostgreSQL and MySQL
// lock signatures so the classifier survives a store engine change.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffStep: 200 * time.Millisecond,
		Patterns: []string{
			"deadlock detected",
			"could not obtain lock",
			"canceling statement due to lock timeout",
			"deadlock found",
			"lock wait timeout",
		},
	}
}

// IsRetriable reports whether the error matches a known contention
// signature.
func (p RetryPolicy) IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, pattern := range p.Patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// Backoff returns the wait before the given retry attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BackoffStep * time.Duration(attempt)
}
