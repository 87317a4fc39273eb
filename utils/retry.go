package utils

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Backoff parameters shared by the transient-error retry helper and the
// referral code collision loop.
const (
	retryBaseDelay = 25 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// IsTransientDBError reports whether err looks like a transient store
// failure worth retrying: dropped connections, timeouts, serialization
// failures (40001) and deadlocks (40P01). Matching is on error text since
// errors cross the gorm/driver boundary as opaque values.
func IsTransientDBError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"timeout expired",
		"too many connections",
		"serialization failure",
		"40001",
		"deadlock detected",
		"40p01",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
// Covers Postgres ("duplicate key ... 23505") and SQLite ("UNIQUE constraint
// failed"), which is what the test databases raise.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique_violation") ||
		strings.Contains(msg, "23505")
}

// BackoffDelay returns the capped exponential delay for the given zero-based
// attempt, with up to 50% random jitter to avoid thundering-herd retries.
func BackoffDelay(attempt int) time.Duration {
	return jitteredDelay(attempt, retryBaseDelay, retryMaxDelay)
}

// CollisionBackoffDelay is the much shorter backoff used between referral
// code collision retries. A collision means one other in-flight request drew
// the same candidate, so the contention window is microscopic; the delay only
// needs to de-synchronize retry bursts, not wait out an outage.
func CollisionBackoffDelay(attempt int) time.Duration {
	return jitteredDelay(attempt, time.Millisecond, 20*time.Millisecond)
}

func jitteredDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

// WithRetry runs fn up to attempts times, sleeping with capped exponential
// backoff between tries, but only while the failure is transient. The last
// error is returned unchanged so callers can still classify it.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransientDBError(err) || i == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BackoffDelay(i)):
		}
	}
	return err
}
