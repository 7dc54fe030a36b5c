package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/posnotify/pkg/statemachine"
)

// ChannelEvent moves a ChannelEntry through its lifecycle.
type ChannelEvent string

const (
	EventEnqueued  ChannelEvent = "enqueued"
	EventDelivered ChannelEvent = "delivered"
	EventRetrying  ChannelEvent = "retrying"
	EventFailed    ChannelEvent = "failed"
)

// Name implements statemachine.Event.
func (e ChannelEvent) Name() string { return string(e) }

// Completion reports what happened to one channel of one record.
type Completion struct {
	RecordID    string
	Channel     Channel
	Event       ChannelEvent
	ExternalID  string
	Error       string
	RetryCount  int
	NextRetryAt *time.Time
	At          time.Time
}

type transitionData struct {
	entry *ChannelEntry
	c     Completion
}

// PENDING -> QUEUED -> {SENT | FAILED}. IN_APP goes PENDING -> SENT directly.
// Repeating a terminal event is a no-op; nothing leaves a terminal state otherwise.
var channelTransitions = statemachine.MustNewTable(
	statemachine.Transition{From: StatusPending, To: StatusQueued, Event: EventEnqueued, Actions: []statemachine.Action{markQueued}},
	statemachine.Transition{From: StatusPending, To: StatusSent, Event: EventDelivered, Actions: []statemachine.Action{markSent}},
	statemachine.Transition{From: StatusQueued, To: StatusSent, Event: EventDelivered, Actions: []statemachine.Action{markSent}},
	statemachine.Transition{From: StatusQueued, To: StatusQueued, Event: EventRetrying, Actions: []statemachine.Action{markRetrying}},
	statemachine.Transition{From: StatusPending, To: StatusFailed, Event: EventFailed, Actions: []statemachine.Action{markFailed}},
	statemachine.Transition{From: StatusQueued, To: StatusFailed, Event: EventFailed, Actions: []statemachine.Action{markFailed}},
	statemachine.Transition{From: StatusSent, To: StatusSent, Event: EventDelivered},
	statemachine.Transition{From: StatusFailed, To: StatusFailed, Event: EventFailed},
)

// applyCompletion returns entry after c. changed is false when c repeats a
// terminal event the entry already reflects.
func applyCompletion(ctx context.Context, entry ChannelEntry, c Completion) (next ChannelEntry, changed bool, err error) {
	next = entry
	to, err := channelTransitions.Fire(ctx, entry.Status, c.Event, &transitionData{entry: &next, c: c})
	if err != nil {
		if statemachine.IsNoTransitionAvailableError(err) {
			return entry, false, fmt.Errorf("%w: %s on %s entry", ErrInvalidTransition, c.Event, entry.Status)
		}
		return entry, false, err
	}

	next.Status = to.(Status)
	if entry.Status.Terminal() && next.Status == entry.Status {
		return entry, false, nil
	}
	return next, true, nil
}

func markQueued(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	d := data.(*transitionData)
	d.entry.ErrorMessage = ""
	d.entry.NextRetryAt = nil
	return nil
}

func markSent(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	d := data.(*transitionData)
	at := d.c.At
	d.entry.SentAt = &at
	d.entry.NextRetryAt = nil
	if d.c.ExternalID != "" {
		d.entry.ExternalID = d.c.ExternalID
	}
	return nil
}

func markRetrying(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	d := data.(*transitionData)
	d.entry.ErrorMessage = d.c.Error
	d.entry.NextRetryAt = cloneTime(d.c.NextRetryAt)
	if d.c.RetryCount > d.entry.RetryCount {
		d.entry.RetryCount = d.c.RetryCount
	}
	return nil
}

func markFailed(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	d := data.(*transitionData)
	at := d.c.At
	d.entry.FailedAt = &at
	d.entry.ErrorMessage = d.c.Error
	d.entry.NextRetryAt = nil
	if d.c.RetryCount > d.entry.RetryCount {
		d.entry.RetryCount = d.c.RetryCount
	}
	return nil
}
