package resilience

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newBreaker(t *testing.T, threshold int, disabled bool) CircuitBreaker {
	t.Helper()
	cb, err := NewCircuitBreaker(threshold, 30*time.Second, disabled)
	require.NoError(t, err)
	return cb
}

func TestNewCircuitBreaker_Validation(t *testing.T) {
	_, err := NewCircuitBreaker(0, time.Second, false)
	assert.Error(t, err)

	_, err = NewCircuitBreaker(1, 0, false)
	assert.Error(t, err)

	cb, err := NewCircuitBreaker(3, time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.FailureCount())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	for threshold := 1; threshold <= 5; threshold++ {
		t.Run(fmt.Sprintf("threshold_%d", threshold), func(t *testing.T) {
			cb := newBreaker(t, threshold, false)
			var last time.Time
			for i := 0; i < threshold; i++ {
				assert.Equal(t, CircuitClosed, cb.State())
				last = t0.Add(time.Duration(i) * time.Second)
				cb = cb.RecordFailure(last)
			}
			assert.Equal(t, CircuitOpen, cb.State())
			assert.Equal(t, last, cb.OpenedAt())
			assert.Equal(t, threshold, cb.FailureCount())
		})
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb := newBreaker(t, 3, false)
	cb = cb.RecordFailure(t0).RecordFailure(t0)
	assert.Equal(t, 2, cb.FailureCount())

	cb = cb.RecordSuccess(t0)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.FailureCount())
	assert.Equal(t, 1, cb.SuccessCount())
}

func TestCircuitBreaker_TransitionsReturnNewValues(t *testing.T) {
	cb := newBreaker(t, 1, false)
	opened := cb.RecordFailure(t0)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.FailureCount())
	assert.Equal(t, CircuitOpen, opened.State())

	half := opened.TransitionToHalfOpen()
	assert.Equal(t, CircuitOpen, opened.State())
	assert.Equal(t, CircuitHalfOpen, half.State())
}

func TestCircuitBreaker_ShouldAllowRequest(t *testing.T) {
	cb := newBreaker(t, 1, false)
	assert.True(t, cb.ShouldAllowRequest(t0))

	open := cb.RecordFailure(t0)
	assert.False(t, open.ShouldAllowRequest(t0))
	assert.False(t, open.ShouldAllowRequest(t0.Add(30*time.Second)))
	assert.True(t, open.ShouldAllowRequest(t0.Add(30*time.Second+time.Nanosecond)))

	assert.True(t, open.TransitionToHalfOpen().ShouldAllowRequest(t0))
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := newBreaker(t, 2, false)
	half := cb.RecordFailure(t0).RecordFailure(t0).TransitionToHalfOpen()
	require.Equal(t, CircuitHalfOpen, half.State())

	closed := half.RecordSuccess(t0.Add(time.Minute))
	assert.Equal(t, CircuitClosed, closed.State())
	assert.Zero(t, closed.FailureCount())

	later := t0.Add(time.Minute)
	reopened := half.RecordFailure(later)
	assert.Equal(t, CircuitOpen, reopened.State())
	assert.Equal(t, 1, reopened.FailureCount())
	assert.Equal(t, later, reopened.OpenedAt())
}

func TestCircuitBreaker_FailedProbeFromOpenReopens(t *testing.T) {
	cb := newBreaker(t, 1, false).RecordFailure(t0)
	probe := t0.Add(time.Minute)
	require.True(t, cb.ShouldAllowRequest(probe))

	cb = cb.RecordFailure(probe)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, probe, cb.OpenedAt())
	assert.False(t, cb.ShouldAllowRequest(probe.Add(time.Second)))
}

func TestCircuitBreaker_FailureWhileOpenKeepsWindow(t *testing.T) {
	cb := newBreaker(t, 2, false).RecordFailure(t0).RecordFailure(t0)
	require.Equal(t, CircuitOpen, cb.State())

	inside := t0.Add(10 * time.Second)
	cb = cb.RecordFailure(inside)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 3, cb.FailureCount())
	assert.Equal(t, t0, cb.OpenedAt())
	assert.True(t, cb.ShouldAllowRequest(t0.Add(31*time.Second)))
}

func TestCircuitBreaker_DisabledNeverBlocks(t *testing.T) {
	cb := newBreaker(t, 1, true)
	cb = cb.RecordFailure(t0)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 1, cb.FailureCount())
	assert.True(t, cb.ShouldAllowRequest(t0))
	assert.True(t, cb.TransitionToHalfOpen().ShouldAllowRequest(t0))
}
