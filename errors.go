package store

import (
	"errors"
	"fmt"
)

var (
	ErrNoEvaluator       = errors.New("store: evaluator not configured")
	ErrUnknownAction     = errors.New("store: unknown action")
	ErrUnknownComputed   = errors.New("store: unknown computed")
	ErrComputedCycle     = errors.New("store: computed cycle")
	ErrInvalidState      = errors.New("store: state must be an object")
	ErrDuplicateName     = errors.New("store: duplicate name")
	ErrNotCallable       = errors.New("store: not callable")
	ErrSubscriberPanic   = errors.New("store: subscriber panicked")
	ErrEvaluationTimeout = errors.New("store: evaluation timed out")
	ErrWriteLockWait     = errors.New("store: context done while waiting for the write lock")
)

// TypeError reports a contract violation by the caller, such as registering
// a nil callback.
type TypeError struct {
	Op   string
	What string
}

func (e *TypeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("store: %s: %s is not callable", e.Op, e.What)
}

func (e *TypeError) Unwrap() error { return ErrNotCallable }

func notCallable(op, what string) error {
	return &TypeError{Op: op, What: what}
}

// ActionError wraps the error returned by an action. Writes the action made
// before failing have been published.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("store: action %q: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
