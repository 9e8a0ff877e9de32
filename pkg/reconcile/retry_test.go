package reconcile

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyClassifiesContention(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.True(t, policy.IsRetriable(errors.New("pq: deadlock detected")))
	assert.True(t, policy.IsRetriable(errors.New("Error 1205: Lock wait timeout exceeded")))
	assert.True(t, policy.IsRetriable(errors.New("ERROR: canceling statement due to lock timeout")))

	// Wrapping keeps the driver message reachable
	wrapped := errors.Wrap(errors.New("pq: deadlock detected"), "failed to update product row")
	assert.True(t, policy.IsRetriable(wrapped))

	assert.False(t, policy.IsRetriable(nil))
	assert.False(t, policy.IsRetriable(errors.New("pq: syntax error at or near")))
	assert.False(t, policy.IsRetriable(errors.New("connection refused")))
}

func TestRetryPolicyBackoffGrowsLinearly(t *testing.T) {
	policy := RetryPolicy{BackoffStep: 200 * time.Millisecond}

	assert.Equal(t, 200*time.Millisecond, policy.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, policy.Backoff(2))
	assert.Equal(t, 600*time.Millisecond, policy.Backoff(3))
}
