package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	t.Run("trips at threshold", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute, nil)

		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.RecordFailure())
		assert.True(t, cb.RecordFailure())
		assert.True(t, cb.IsOpen())
	})

	t.Run("disabled breaker never opens", func(t *testing.T) {
		cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, nil)

		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.IsOpen())
	})

	t.Run("failures outside window are forgotten", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 2, 10*time.Millisecond, time.Minute, nil)

		assert.False(t, cb.RecordFailure())
		time.Sleep(20 * time.Millisecond)
		assert.False(t, cb.RecordFailure(), "stale failure must not count toward the threshold")
	})

	t.Run("reopens after reset timeout", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 1, time.Minute, 10*time.Millisecond, nil)

		assert.True(t, cb.RecordFailure())
		assert.True(t, cb.IsOpen())

		time.Sleep(20 * time.Millisecond)
		assert.False(t, cb.IsOpen())
	})

	t.Run("success clears the failure count", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 2, time.Minute, time.Minute, nil)

		assert.False(t, cb.RecordFailure())
		cb.RecordSuccess()
		assert.False(t, cb.RecordFailure(), "count must restart after a success")
	})

	t.Run("manual reset closes the circuit", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 1, time.Minute, time.Minute, nil)

		assert.True(t, cb.RecordFailure())
		cb.Reset()
		assert.False(t, cb.IsOpen())
	})
}
