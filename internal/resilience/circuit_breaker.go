package resilience

import (
	"fmt"
	"time"
)

// CircuitState is the breaker position
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreaker guards write forwarding to the primary. It is a value:
// every Record* and TransitionToHalfOpen call returns a new breaker and
// leaves the receiver untouched. Callers publish the returned value.
type CircuitBreaker struct {
	threshold    int
	resetTimeout time.Duration
	disabled     bool

	state        CircuitState
	failureCount int
	successCount int
	openedAt     time.Time
}

// NewCircuitBreaker creates a closed breaker. A disabled breaker still
// tracks counters and transitions but never blocks.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, disabled bool) (CircuitBreaker, error) {
	if threshold < 1 {
		return CircuitBreaker{}, fmt.Errorf("circuit breaker threshold must be at least 1, got %d", threshold)
	}
	if resetTimeout <= 0 {
		return CircuitBreaker{}, fmt.Errorf("circuit breaker reset timeout must be positive, got %s", resetTimeout)
	}
	return CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		disabled:     disabled,
		state:        CircuitClosed,
	}, nil
}

func (cb CircuitBreaker) State() CircuitState         { return cb.state }
func (cb CircuitBreaker) FailureCount() int           { return cb.failureCount }
func (cb CircuitBreaker) SuccessCount() int           { return cb.successCount }
func (cb CircuitBreaker) OpenedAt() time.Time         { return cb.openedAt }
func (cb CircuitBreaker) Threshold() int              { return cb.threshold }
func (cb CircuitBreaker) ResetTimeout() time.Duration { return cb.resetTimeout }
func (cb CircuitBreaker) Disabled() bool              { return cb.disabled }

// ShouldAllowRequest reports whether a request may be sent at now. An open
// breaker admits requests once now is past openedAt+resetTimeout.
func (cb CircuitBreaker) ShouldAllowRequest(now time.Time) bool {
	if cb.disabled {
		return true
	}
	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	default:
		return now.After(cb.openedAt.Add(cb.resetTimeout))
	}
}

// RecordSuccess closes the breaker and clears the failure streak
func (cb CircuitBreaker) RecordSuccess(now time.Time) CircuitBreaker {
	next := cb
	next.state = CircuitClosed
	next.failureCount = 0
	next.successCount = cb.successCount + 1
	next.openedAt = time.Time{}
	return next
}

// RecordFailure counts a failure at now. From CLOSED the breaker opens once
// the streak reaches the threshold; a failed probe (HALF_OPEN, or OPEN past
// its reset timeout) reopens it with a streak of one. A failure while OPEN
// within the reset window only extends the streak.
func (cb CircuitBreaker) RecordFailure(now time.Time) CircuitBreaker {
	next := cb
	next.successCount = 0

	switch cb.state {
	case CircuitClosed:
		next.failureCount = cb.failureCount + 1
		if next.failureCount >= cb.threshold {
			next.state = CircuitOpen
			next.openedAt = now
		}
	case CircuitOpen:
		if !now.After(cb.openedAt.Add(cb.resetTimeout)) {
			next.failureCount = cb.failureCount + 1
			return next
		}
		next.failureCount = 1
		next.openedAt = now
	default:
		next.state = CircuitOpen
		next.failureCount = 1
		next.openedAt = now
	}
	return next
}

// TransitionToHalfOpen moves an open breaker into the probe state
func (cb CircuitBreaker) TransitionToHalfOpen() CircuitBreaker {
	next := cb
	if cb.state == CircuitOpen {
		next.state = CircuitHalfOpen
	}
	return next
}
