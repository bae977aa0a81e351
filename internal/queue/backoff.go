package queue

import (
	"math/rand/v2"
	"time"
)

// Backoff computes base·2^retryCount plus up to 20% jitter, the retry delay
// described in §4.1.
func Backoff(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 20 {
		retryCount = 20 // guard against overflow on pathological retry counts
	}
	delay := base << retryCount
	jitter := time.Duration(rand.Int64N(int64(delay)/5 + 1))
	return delay + jitter
}
