// Package budget tracks the token and call ceilings for one resolution session.
package budget

import (
	"sync"
	"time"
)

// Limits configures the session ceilings. Negative means unlimited; zero
// is a real ceiling of zero (everything degrades to direct mode).
type Limits struct {
	// MaxTotalTokens is the soft token ceiling for the whole session.
	MaxTotalTokens int64 `json:"max_total_tokens" yaml:"max_total_tokens"`

	// MaxCalls is the soft ceiling on model calls. Negative means unlimited.
	MaxCalls int64 `json:"max_calls" yaml:"max_calls"`
}

// Unlimited returns limits with no ceilings.
func Unlimited() Limits {
	return Limits{MaxTotalTokens: -1, MaxCalls: -1}
}

// State is a snapshot of current consumption.
type State struct {
	TokensSpent  int64     `json:"tokens_spent"`
	Calls        int64     `json:"calls"`
	SessionStart time.Time `json:"session_start"`
}

// Tracker is a mutex-guarded spend ledger. Exhaustion is soft: callers ask
// Exhausted or PermitsSubCalls and degrade to direct-answer mode, the
// tracker never blocks or errors a spend.
type Tracker struct {
	mu     sync.Mutex
	limits Limits
	state  State

	// estimatePerCall is the assumed token footprint of one model call,
	// used when deciding whether the remaining budget admits a fan-out.
	estimatePerCall int64
}

// DefaultEstimatePerCall is the assumed tokens per sub-call when sizing
// fan-out against the remaining budget.
const DefaultEstimatePerCall = 800

// NewTracker creates a tracker with the given limits.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{
		limits:          limits,
		state:           State{SessionStart: time.Now()},
		estimatePerCall: DefaultEstimatePerCall,
	}
}

// SetEstimatePerCall overrides the per-call token estimate.
func (t *Tracker) SetEstimatePerCall(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 0 {
		t.estimatePerCall = n
	}
}

// Spend records a completed call's token consumption.
func (t *Tracker) Spend(tokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.TokensSpent += tokens
	t.state.Calls++
}

// Remaining returns the unspent token budget, or -1 when unlimited.
func (t *Tracker) Remaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limits.MaxTotalTokens < 0 {
		return -1
	}
	rem := t.limits.MaxTotalTokens - t.state.TokensSpent
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Exhausted reports whether either soft ceiling has been reached.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limits.MaxTotalTokens >= 0 && t.state.TokensSpent >= t.limits.MaxTotalTokens {
		return true
	}
	if t.limits.MaxCalls >= 0 && t.state.Calls >= t.limits.MaxCalls {
		return true
	}
	return false
}

// PermitsSubCalls reports whether the remaining budget admits at least n
// further calls at the configured per-call estimate.
func (t *Tracker) PermitsSubCalls(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limits.MaxCalls >= 0 && t.state.Calls+int64(n) > t.limits.MaxCalls {
		return false
	}
	if t.limits.MaxTotalTokens >= 0 {
		need := int64(n) * t.estimatePerCall
		if t.state.TokensSpent+need > t.limits.MaxTotalTokens {
			return false
		}
	}
	return true
}

// State returns a copy of the current consumption.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Limits returns a copy of the configured limits.
func (t *Tracker) Limits() Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// Reset clears consumption but keeps limits.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = State{SessionStart: time.Now()}
}
