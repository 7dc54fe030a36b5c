// Package statemachine provides a finite state machine defined as an
// immutable transition Table.
//
// A Table holds no current state. Callers keep the state on their own entity
// and ask the table for the next one, which lets one table serve many
// entities from many goroutines:
//
//	table := statemachine.MustNewTable(
//		statemachine.Transition{From: Pending, To: Queued, Event: Enqueued},
//		statemachine.Transition{From: Queued, To: Sent, Event: Delivered, Actions: []statemachine.Action{stampSentAt}},
//	)
//
//	next, err := table.Fire(ctx, entry.Status, Delivered, entry)
//	if statemachine.IsNoTransitionAvailableError(err) {
//		// the event is not valid in the current state
//	}
//
// Guards pick between transitions that share a source state and event;
// actions run in order and abort the transition on error.
package statemachine
