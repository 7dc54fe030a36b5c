package statemachine

import "context"

// State is a node of the machine.
type State interface {
	Name() string
}

// Event triggers a transition.
type Event interface {
	Name() string
}

// Action runs while a transition is taken. An error aborts the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard decides at fire time whether a transition may be taken.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition moves From to To on Event. When several transitions share From
// and Event, the first one whose guards all pass is taken.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// StringState is a State named by its value.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event named by its value.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
