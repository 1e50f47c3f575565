package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Unix(0, 0)
	b := NewCircuitBreaker("test", threshold, cooldown)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, CircuitClosed, b.State())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, CircuitOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerHalfOpenAfterCooldownThenCloses(t *testing.T) {
	b, now := newTestBreaker(2, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.Allow())

	*now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())

	*now = now.Add(time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, CircuitHalfOpen, b.State())

	// a single probe success restores closed
	b.RecordSuccess()
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(2, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	*now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, CircuitOpen, b.State())
	assert.False(t, b.Allow())

	// the cooldown restarts from the probe failure
	*now = now.Add(30 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)
	b.RecordFailure()
	assert.False(t, b.Allow())

	b.Reset()
	assert.True(t, b.Allow())
	assert.Equal(t, CircuitClosed, b.State())
}
