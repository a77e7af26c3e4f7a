package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rand/fathom/internal/resilience"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(Transient(errors.New("x"))))
	assert.Equal(t, KindFatal, KindOf(Fatal(errors.New("x"))))
	assert.Equal(t, KindConfigConflict, KindOf(&CallError{Kind: KindConfigConflict, Err: ErrConfigConflict}))

	// Wrapped tagged errors keep their kind.
	wrapped := fmt.Errorf("call failed: %w", Fatal(errors.New("bad key")))
	assert.Equal(t, KindFatal, KindOf(wrapped))

	assert.Equal(t, KindTransient, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindTransient, KindOf(resilience.ErrCircuitOpen))
	assert.Equal(t, KindTransient, KindOf(errors.New("untagged provider failure")))
}

func TestCallErrorUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := Transient(inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "transient")
}
