package statemachine

import (
	"context"
	"fmt"
)

// Table is an immutable set of transitions. It holds no current state, so a
// single Table can drive any number of entities concurrently.
type Table struct {
	index map[string]map[string][]Transition
}

// NewTable indexes transitions by source state and event.
func NewTable(transitions ...Transition) (*Table, error) {
	t := &Table{index: make(map[string]map[string][]Transition)}
	for i, tr := range transitions {
		if tr.From == nil || tr.To == nil || tr.Event == nil {
			return nil, fmt.Errorf("transition %d: %w", i, ErrInvalidTransition)
		}
		byEvent, ok := t.index[tr.From.Name()]
		if !ok {
			byEvent = make(map[string][]Transition)
			t.index[tr.From.Name()] = byEvent
		}
		byEvent[tr.Event.Name()] = append(byEvent[tr.Event.Name()], tr)
	}
	return t, nil
}

// MustNewTable is NewTable that panics on an invalid transition.
func MustNewTable(transitions ...Transition) *Table {
	t, err := NewTable(transitions...)
	if err != nil {
		panic(err)
	}
	return t
}

// Fire takes the transition for event out of from, running its actions, and
// returns the target state. On error the caller stays in from.
func (t *Table) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	if from == nil || event == nil {
		return from, ErrInvalidEvent
	}

	tr, err := t.find(ctx, from, event, data)
	if err != nil {
		return from, err
	}
	for _, action := range tr.Actions {
		if err := action(ctx, from, tr.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}
	return tr.To, nil
}

// CanFire reports whether Fire would find a transition, without running actions.
func (t *Table) CanFire(ctx context.Context, from State, event Event, data any) bool {
	if from == nil || event == nil {
		return false
	}
	_, err := t.find(ctx, from, event, data)
	return err == nil
}

func (t *Table) find(ctx context.Context, from State, event Event, data any) (Transition, error) {
	candidates := t.index[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return Transition{}, &NoTransitionError{State: from.Name(), Event: event.Name()}
	}
	for _, tr := range candidates {
		if guardsPass(ctx, tr.Guards, from, event, data) {
			return tr, nil
		}
	}
	return Transition{}, &RejectedError{State: from.Name(), Event: event.Name()}
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
