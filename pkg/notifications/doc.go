// Package notifications is a multi-channel notification dispatch engine.
//
// A caller describes an event with a Payload: its Type, the requested
// channels (EMAIL, PUSH, SMS, IN_APP), a Priority, who should receive it and
// which template renders it. The Dispatcher resolves the recipients, filters
// the channels through every recipient's Preference, stores one Record per
// recipient and enqueues one job per queued channel. It returns the record
// ids right away; delivery happens on channel workers.
//
// # Architecture
//
//   - Resolver: expands a RecipientSpec through a UserDirectory and
//     deduplicates the result. Guests (raw email/mobile) are keyed by contact.
//   - Gate: applies global channel flags, per-type overrides and quiet hours.
//     Non-critical notifications inside quiet hours are stored PENDING with
//     ScheduledFor set to the end of the window.
//   - Dispatcher: Send, SendBatch, SendToRole, SendToBranch, SendCustom,
//     PromoteDue and CancelDeferred.
//   - Channel handlers: queue.Handler implementations calling a Provider with
//     a bounded timeout and reporting every outcome as a Completion.
//   - Aggregator: the single reducer of completions. It updates one
//     ChannelEntry at a time and recomputes the record status from a fresh
//     read under a version check.
//   - Manager: the in-app feed, read receipts, preferences, push tokens and
//     analytics.
//
// # Statuses
//
// Every ChannelEntry moves PENDING -> QUEUED -> SENT or FAILED (IN_APP goes
// straight to SENT). A record is SENT when all of its entries are SENT,
// FAILED when one failed and none is still in flight, and QUEUED or PENDING
// otherwise. See OverallStatus.
//
// # Basic Usage
//
//	store := notifications.NewMemoryStorage()
//	dir := notifications.NewMemoryDirectory(users...)
//	gate := notifications.NewGate(store)
//	agg := notifications.NewAggregator(store)
//	_ = agg.Start(ctx)
//
//	qs := queue.NewMemoryStorage()
//	enq, _ := queue.NewEnqueuer(qs)
//
//	d, _ := notifications.NewDispatcher(store, notifications.NewResolver(dir), gate, enq, agg)
//	ids, err := d.Send(ctx, notifications.Payload{
//	    Type:       notifications.TypeBillCreated,
//	    Channels:   []notifications.Channel{notifications.ChannelEmail, notifications.ChannelInApp},
//	    Priority:   notifications.PriorityHigh,
//	    Recipients: notifications.RecipientSpec{UserID: "user-1"},
//	    TemplateID: "bill-created",
//	})
//
// Channel workers register one handler per channel:
//
//	h, _ := notifications.NewChannelHandler(notifications.ChannelEmail, emailProvider, agg)
//	w, _ := queue.NewWorker(qs, queue.WithQueues(notifications.ChannelEmail.Queue()))
//	_ = w.RegisterHandler(h)
package notifications
