package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rand/fathom/internal/resilience"
)

// ErrorKind classifies call failures for the retry/fallback policy.
type ErrorKind int

const (
	// KindTransient covers timeouts, rate limits, and other temporary
	// failures. Retried at the same tier, then one tier down.
	KindTransient ErrorKind = iota

	// KindFatal covers auth and malformed-request failures. Surfaced
	// immediately; no retry or fallback.
	KindFatal

	// KindConfigConflict marks mutually exclusive parameters set on one
	// request. Rejected before dispatch.
	KindConfigConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindConfigConflict:
		return "config-conflict"
	default:
		return "unknown"
	}
}

// ErrTiersExhausted is returned when every tier from the requested one down
// failed transiently.
var ErrTiersExhausted = errors.New("all model tiers exhausted")

// ErrConfigConflict is returned when a request sets both a reasoning-depth
// control and a temperature; the two are mutually exclusive per call.
var ErrConfigConflict = errors.New("reasoning effort and temperature are mutually exclusive")

// CallError wraps a call failure with its kind.
type CallError struct {
	Kind ErrorKind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) *CallError {
	return &CallError{Kind: KindTransient, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(err error) *CallError {
	return &CallError{Kind: KindFatal, Err: err}
}

// KindOf classifies an arbitrary error. Tagged errors keep their kind;
// context timeouts, cancellations, and breaker rejections are transient.
// Untagged errors default to transient so unknown provider failures get
// the retry path rather than an immediate node failure.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return KindTransient
	}
	return KindTransient
}
