package data

import "errors"

var (
	// ErrNetwork marks transient transport failures. Retryable.
	ErrNetwork = errors.New("network error")
	// ErrRateLimited marks upstream throttling. Retryable with back-off.
	ErrRateLimited = errors.New("rate limited")
	// ErrAdapter marks permanent adapter failures (bad symbol, bad payload).
	ErrAdapter = errors.New("adapter error")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrFetch wraps any of the above when a fetch ultimately fails.
	ErrFetch = errors.New("data fetch failed")
)

// IsRetryable reports whether the adapter call may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited)
}
