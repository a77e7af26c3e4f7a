// Package resilience guards model families against repeated transient failure.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a family breaker.
type CircuitState int

const (
	// StateClosed allows all calls through (normal operation).
	StateClosed CircuitState = iota

	// StateOpen rejects all calls immediately (family tripped).
	StateOpen

	// StateHalfOpen allows a single probe call through.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call. The router
// treats it as a transient failure and falls through to the next tier.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a family breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures
	// before the breaker opens. Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker waits before allowing
	// a probe. Default: 30 seconds.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive probe successes in
	// half-open state before closing. Default: 1.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 1,
	}
}

// Breaker is a circuit breaker for one model family.
type Breaker struct {
	config BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	trips      int64
	rejections int64

	now func() time.Time // test hook
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker whose recovery
// timeout has elapsed moves to half-open and admits one probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			return nil
		}
		b.rejections++
		return ErrCircuitOpen
	case StateHalfOpen:
		return nil
	default:
		return nil
	}
}

// RecordSuccess registers a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state == StateHalfOpen {
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = StateClosed
		}
	}
}

// RecordFailure registers a transient failure. Fatal failures should not be
// recorded: they say nothing about the family's availability.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()

	if b.state == StateHalfOpen || b.failureCount >= b.config.FailureThreshold {
		if b.state != StateOpen {
			b.trips++
		}
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}

// Set is a lazily populated collection of breakers keyed by family.
type Set struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*Breaker
}

// NewSet creates a breaker set using one shared configuration.
func NewSet(config BreakerConfig) *Set {
	return &Set{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for a family, creating it on first use.
func (s *Set) For(family string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[family]
	if !ok {
		b = NewBreaker(s.config)
		s.breakers[family] = b
	}
	return b
}

// Reset closes every breaker in the set.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.breakers {
		b.Reset()
	}
}
