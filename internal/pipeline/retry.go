package pipeline

import (
	"errors"
	"math/rand"
	"time"

	"github.com/finchunk/finchunk/internal/store"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var transient *store.TransientError
	return errors.As(err, &transient)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3
