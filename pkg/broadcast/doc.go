// Package broadcast fans typed messages out to many subscribers.
//
// MemoryBroadcaster keeps subscribers in process. Sends never block: a
// subscriber whose buffer is full is dropped and its channel closed, and a
// subscription also ends when the context passed to Subscribe is done.
//
//	b := broadcast.NewMemoryBroadcaster[Event](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	_ = b.Broadcast(ctx, broadcast.Message[Event]{Data: ev})
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
package broadcast
