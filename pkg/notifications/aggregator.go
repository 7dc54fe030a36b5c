package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/posnotify/pkg/async"
	"github.com/dmitrymomot/posnotify/pkg/logger"
)

// Aggregator is the single reducer of channel completions. Each Completion is
// applied as a targeted update of one ChannelEntry, after which the overall
// status is recomputed from a fresh read of the record.
type Aggregator struct {
	store        RecordStore
	logger       *slog.Logger
	maxConflicts int

	inbox chan reduceRequest

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type reduceRequest struct {
	ctx   context.Context
	c     Completion
	reply chan reduceResult
}

type reduceResult struct {
	rec *Record
	err error
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the logger for the Aggregator.
func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxConflictRetries bounds how often one completion is re-applied after
// losing an optimistic version check. Default is 5.
func WithMaxConflictRetries(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxConflicts = n
		}
	}
}

// NewAggregator creates an Aggregator. It does nothing until started.
func NewAggregator(store RecordStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:        store,
		logger:       slog.Default(),
		maxConflicts: 5,
		inbox:        make(chan reduceRequest),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("aggregator"))
	return a
}

// Start launches the reducer goroutine.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return fmt.Errorf("aggregator already started")
	}

	ctx, a.cancel = context.WithCancel(ctx)
	go a.loop(ctx)
	return nil
}

// Stop halts the reducer. Pending and later submissions fail with ErrAggregatorClosed.
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("aggregator not started")
	}
	cancel()
	<-a.done
	return nil
}

// Run starts the aggregator and returns a function suitable for errgroup.
func (a *Aggregator) Run(ctx context.Context) func() error {
	return func() error {
		if err := a.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return a.Stop()
	}
}

func (a *Aggregator) loop(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.inbox:
			rec, err := a.reduce(req.ctx, req.c)
			req.reply <- reduceResult{rec: rec, err: err}
		}
	}
}

// Submit hands c to the reducer and returns a future of the record as stored
// after c and the status recomputation were applied.
func (a *Aggregator) Submit(ctx context.Context, c Completion) *async.Future[*Record] {
	return async.Async(ctx, c, a.submit)
}

// Apply is Submit followed by Await.
func (a *Aggregator) Apply(ctx context.Context, c Completion) (*Record, error) {
	return a.Submit(ctx, c).Await()
}

func (a *Aggregator) submit(ctx context.Context, c Completion) (*Record, error) {
	reply := make(chan reduceResult, 1)
	select {
	case a.inbox <- reduceRequest{ctx: ctx, c: c, reply: reply}:
	case <-a.done:
		return nil, ErrAggregatorClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.rec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Aggregator) reduce(ctx context.Context, c Completion) (*Record, error) {
	rec, err := a.updateEntry(ctx, c)
	if err != nil {
		return nil, err
	}

	rec, err = a.settle(ctx, rec)
	if err != nil {
		return nil, err
	}

	if entry := rec.Entry(c.Channel); entry != nil && entry.Status == StatusFailed && c.Event == EventFailed {
		a.logger.LogAttrs(ctx, slog.LevelError, "channel delivery failed",
			logger.NotificationID(rec.ID),
			logger.Channel(c.Channel.String()),
			logger.Attempt(entry.RetryCount),
			slog.String("error_message", entry.ErrorMessage),
		)
	}
	return rec, nil
}

// updateEntry applies c to its ChannelEntry, re-reading on conflicts.
func (a *Aggregator) updateEntry(ctx context.Context, c Completion) (*Record, error) {
	for range a.maxConflicts {
		rec, err := a.store.GetRecord(ctx, c.RecordID)
		if err != nil {
			return nil, err
		}

		entry := rec.Entry(c.Channel)
		if entry == nil {
			return nil, fmt.Errorf("%w: %s on %s", ErrChannelNotOnRecord, c.Channel, rec.ID)
		}

		next, changed, err := applyCompletion(ctx, *entry, c)
		if err != nil {
			return nil, err
		}
		if !changed {
			return rec, nil
		}

		rec, err = a.store.UpdateChannel(ctx, rec.ID, entry.Status, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update %s entry of %s: %w", c.Channel, c.RecordID, err)
		}
		return rec, nil
	}
	return nil, ErrVersionConflict
}

// settle recomputes the overall status and writes it under a version check.
func (a *Aggregator) settle(ctx context.Context, rec *Record) (*Record, error) {
	for range a.maxConflicts {
		status := OverallStatus(rec.Channels)
		if status == rec.Status {
			return rec, nil
		}

		err := a.store.SetStatus(ctx, rec.ID, status, rec.Version)
		if err == nil {
			rec.Status = status
			rec.Version++
			return rec, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("failed to set status of %s: %w", rec.ID, err)
		}

		if rec, err = a.store.GetRecord(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return nil, ErrVersionConflict
}
