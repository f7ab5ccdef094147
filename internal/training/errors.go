package training

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation that needs a live
	// session arrives before INITIALIZE.
	ErrNotInitialized = errors.New("session not initialized: send INITIALIZE first")

	// ErrBufferFull is returned when a transition arrives while the rollout
	// buffer is still full, which only happens if a previous training update
	// failed and the buffer was deliberately left intact.
	ErrBufferFull = errors.New("rollout buffer is full: previous training update did not complete")
)

// ShapeMismatchError reports an observation or action whose shape does not
// match the spec declared at INITIALIZE.
type ShapeMismatchError struct {
	Field string
	Want  int
	Got   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %s has %d elements, session expects %d", e.Field, e.Got, e.Want)
}

// PolicyEngineError wraps a failure surfaced by the policy engine. The
// bookkeeping performed before the failing call is not rolled back.
type PolicyEngineError struct {
	Op  string
	Err error
}

func (e *PolicyEngineError) Error() string {
	return fmt.Sprintf("policy engine %s: %v", e.Op, e.Err)
}

func (e *PolicyEngineError) Unwrap() error { return e.Err }
