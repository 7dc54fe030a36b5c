package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition needs from, to and event")
	ErrInvalidEvent      = errors.New("statemachine: state and event are required")
)

// NoTransitionError means the table has no transition for the state and event.
type NoTransitionError struct {
	State string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from %q on %q", e.State, e.Event)
}

// RejectedError means transitions exist but every one was refused by a guard.
type RejectedError struct {
	State string
	Event string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transition from %q on %q rejected by guards", e.State, e.Event)
}

// IsNoTransitionAvailableError reports whether err wraps a NoTransitionError.
func IsNoTransitionAvailableError(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}

// IsTransitionRejectedError reports whether err wraps a RejectedError.
func IsTransitionRejectedError(err error) bool {
	var e *RejectedError
	return errors.As(err, &e)
}
