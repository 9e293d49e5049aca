package storage

import "time"

const maxRetryDelay = 2 * time.Second

// retryDelay is base * 2^attempt, capped at maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	if attempt < 0 {
		return base
	}
	if attempt > 20 {
		return maxRetryDelay
	}
	d := base * time.Duration(1<<attempt)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
