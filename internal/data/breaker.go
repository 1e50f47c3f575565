package data

import (
	"sync"
	"time"

	"quant-engine/internal/infrastructure"
)

// CircuitState is the breaker position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips after failureThreshold consecutive failures, rejects
// calls while open, and probes again after the cooldown elapses since the
// last failure. One probe success (successThreshold=1) restores closed; any
// probe failure reopens.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	now             func() time.Time
}

func NewCircuitBreaker(name string, failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: 1,
		cooldown:         cooldown,
		state:            CircuitClosed,
		now:              time.Now,
	}
}

// Allow reports whether a request may proceed, moving OPEN -> HALF_OPEN once
// the cooldown has passed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state != CircuitOpen
}

func (b *CircuitBreaker) maybeHalfOpen() {
	if b.state == CircuitOpen && b.now().Sub(b.lastFailureTime) >= b.cooldown {
		b.setState(CircuitHalfOpen)
		b.successCount = 0
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.setState(CircuitClosed)
			b.failureCount = 0
		}
	case CircuitClosed:
		b.failureCount = 0
	}
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureTime = b.now()
	switch b.state {
	case CircuitHalfOpen:
		b.setState(CircuitOpen)
	case CircuitClosed:
		if b.failureCount >= b.failureThreshold {
			b.setState(CircuitOpen)
		}
	}
}

func (b *CircuitBreaker) setState(s CircuitState) {
	if b.state == s {
		return
	}
	b.state = s
	infrastructure.BreakerState.WithLabelValues(b.name).Set(stateValue(s))
}

func stateValue(s CircuitState) float64 {
	switch s {
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return 0
	}
}

// State returns the current position, applying the cooldown transition.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(CircuitClosed)
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
}

func (b *CircuitBreaker) Stats() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return map[string]any{
		"name":          b.name,
		"state":         string(b.state),
		"failure_count": b.failureCount,
		"success_count": b.successCount,
	}
}
