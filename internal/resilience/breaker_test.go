package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
	})
	now := time.Unix(5000, 0)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.State(), "non-consecutive failures must not trip")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow(), "elapsed recovery timeout admits a probe")
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	b.Reset()

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestSetKeysByFamily(t *testing.T) {
	set := NewSet(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	set.For("claude-sonnet").RecordFailure()

	assert.Equal(t, StateOpen, set.For("claude-sonnet").State())
	assert.Equal(t, StateClosed, set.For("gpt").State(), "families trip independently")

	set.Reset()
	assert.Equal(t, StateClosed, set.For("claude-sonnet").State())
}
