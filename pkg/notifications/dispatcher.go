package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/posnotify/pkg/async"
	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/queue"
	"github.com/dmitrymomot/posnotify/pkg/validator"
)

// JobEnqueuer puts channel jobs on their queues. *queue.Enqueuer satisfies it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Dispatcher turns notification requests into records and channel jobs.
// It returns as soon as records are stored and jobs enqueued; delivery
// outcomes only show up later on the records.
type Dispatcher struct {
	records  RecordStore
	resolver *Resolver
	gate     *Gate
	enqueuer JobEnqueuer
	agg      *Aggregator
	feed     *LiveFeed

	policies  map[Channel]RetryPolicy
	batchSize int
	inAppTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for the Dispatcher.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source used for scheduling and timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithBatchSize sets the chunk size of batch and targeted sends. Default is 100.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithRetryPolicy replaces the retry policy of one queued channel.
func WithRetryPolicy(ch Channel, p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		if ch.Queued() && p.MaxAttempts > 0 {
			d.policies[ch] = p
		}
	}
}

// WithInAppTTL sets how long records carrying IN_APP stay visible. Zero keeps them forever.
func WithInAppTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if ttl >= 0 {
			d.inAppTTL = ttl
		}
	}
}

// WithLiveFeed publishes delivered in-app records to feed.
func WithLiveFeed(feed *LiveFeed) DispatcherOption {
	return func(d *Dispatcher) {
		d.feed = feed
	}
}

// NewDispatcher wires a Dispatcher. The aggregator must be running for
// promotions and enqueue failures to be recorded.
func NewDispatcher(records RecordStore, resolver *Resolver, gate *Gate, enqueuer JobEnqueuer, agg *Aggregator, opts ...DispatcherOption) (*Dispatcher, error) {
	if records == nil || resolver == nil || gate == nil || enqueuer == nil || agg == nil {
		return nil, ErrNilDependency
	}

	d := &Dispatcher{
		records:  records,
		resolver: resolver,
		gate:     gate,
		enqueuer: enqueuer,
		agg:      agg,
		policies: map[Channel]RetryPolicy{
			ChannelEmail: DefaultRetryPolicy(ChannelEmail),
			ChannelPush:  DefaultRetryPolicy(ChannelPush),
			ChannelSMS:   DefaultRetryPolicy(ChannelSMS),
		},
		batchSize: 100,
		inAppTTL:  30 * 24 * time.Hour,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Component("dispatcher"))
	return d, nil
}

// Send resolves the recipients of p and creates one record per recipient
// that has at least one channel left after preference filtering. It returns
// the ids of the created records. Validation failures and an empty recipient
// set return an error before anything is stored. A failure for one recipient
// does not stop the others: the ids of the records that were created are
// returned together with the joined errors.
func (d *Dispatcher) Send(ctx context.Context, p Payload) ([]string, error) {
	p = p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	recipients, err := d.resolver.Resolve(ctx, p.Recipients)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recipients))
	var errs []error
	for _, r := range recipients {
		id, err := d.dispatch(ctx, p, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, errors.Join(errs...)
}

// SendBatch sends every payload, batchSize at a time, each chunk fanned out
// concurrently. Failures are logged and the ids of every record created, including
// those from partly failed payloads, are returned.
func (d *Dispatcher) SendBatch(ctx context.Context, payloads []Payload) ([]string, error) {
	return fanOut(ctx, d, payloads, d.Send)
}

// SendToRole notifies every active user holding role.
func (d *Dispatcher) SendToRole(ctx context.Context, role string, p Payload) ([]string, error) {
	p.Recipients.Role = role
	return d.sendExpanded(ctx, p)
}

// SendToBranch notifies every active user of branchID and tags the records
// with the branch.
func (d *Dispatcher) SendToBranch(ctx context.Context, branchID string, p Payload) ([]string, error) {
	p.Recipients.BranchID = branchID
	p.Metadata.BranchID = branchID
	return d.sendExpanded(ctx, p)
}

// CustomMessage is an ad hoc notification written by an administrator.
type CustomMessage struct {
	Subject    string
	Body       string
	Channels   []Channel
	Priority   Priority
	Recipients RecipientSpec
	Metadata   Metadata
}

// SendCustom sends a CUSTOM notification carrying m's subject and body.
func (d *Dispatcher) SendCustom(ctx context.Context, m CustomMessage) ([]string, error) {
	if err := validator.Apply(
		validator.RequiredString("subject", m.Subject),
		validator.RequiredString("body", m.Body),
	); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	return d.Send(ctx, Payload{
		Type:       TypeCustom,
		Channels:   m.Channels,
		Priority:   m.Priority,
		Recipients: m.Recipients,
		Subject:    m.Subject,
		TemplateID: CustomTemplateID,
		TemplateData: map[string]any{
			CustomSubjectKey: m.Subject,
			CustomBodyKey:    m.Body,
		},
		Metadata: m.Metadata,
	})
}

// PromoteDue enqueues the channel jobs of deferred records whose time has
// come. Each record is claimed first, so concurrent pollers promote it once.
// A record that cannot be fully promoted is released and picked up again by
// the next call. It returns how many records this call promoted, along with
// the joined errors of the records it had to leave for later.
func (d *Dispatcher) PromoteDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := d.records.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due records: %w", err)
	}

	promoted := 0
	var errs []error
	for _, rec := range due {
		// Tokens are read before the claim so a preference outage leaves the
		// record untouched.
		var tokens []string
		if rec.HasChannel(ChannelPush) && !rec.Recipient.IsGuest() {
			pref, err := d.gate.Preference(ctx, rec.Recipient.UserID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			tokens = pushTokenValues(pref)
		}

		claimed, err := d.records.ClaimForProcessing(ctx, rec.ID, now)
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to claim record %s: %w", rec.ID, err))
			continue
		}

		if err := d.promote(ctx, claimed, tokens); err != nil {
			errs = append(errs, d.release(ctx, claimed.ID, err))
			continue
		}
		promoted++
	}

	if promoted > 0 {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "promoted deferred notifications",
			slog.Int("count", promoted),
		)
	}
	return promoted, errors.Join(errs...)
}

// CancelDeferred deletes a record that has not been promoted yet. This races
// with the poller: once the record is claimed it returns ErrNotDeferred and
// delivery goes ahead.
func (d *Dispatcher) CancelDeferred(ctx context.Context, id string) error {
	return d.records.DeleteDeferred(ctx, id)
}

func (d *Dispatcher) sendExpanded(ctx context.Context, p Payload) ([]string, error) {
	p = p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	recipients, err := d.resolver.Resolve(ctx, p.Recipients)
	if err != nil {
		return nil, err
	}

	return fanOut(ctx, d, recipients, func(ctx context.Context, r Recipient) ([]string, error) {
		id, err := d.dispatch(ctx, p, r)
		if err != nil || id == "" {
			return nil, err
		}
		return []string{id}, nil
	})
}

// dispatch creates the record for one recipient and, unless it is deferred,
// enqueues its channel jobs. It returns "" when no channel survives the gate.
func (d *Dispatcher) dispatch(ctx context.Context, p Payload, r Recipient) (string, error) {
	decision, err := d.gate.Evaluate(ctx, r, p.Type, p.Priority, p.Channels)
	if err != nil {
		return "", err
	}
	if len(decision.Channels) == 0 {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "all channels filtered by preferences",
			logger.UserID(r.UserID),
			logger.NotificationType(p.Type.String()),
		)
		return "", nil
	}

	now := d.now()
	rec := &Record{
		ID:           uuid.NewString(),
		Type:         p.Type,
		Priority:     p.Priority,
		Status:       StatusPending,
		Recipient:    r,
		Subject:      p.Subject,
		TemplateID:   p.TemplateID,
		TemplateData: p.TemplateData,
		Options:      p.Options,
		Metadata:     p.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, ch := range decision.Channels {
		rec.Channels = append(rec.Channels, ChannelEntry{Channel: ch, Status: StatusPending})
	}
	if rec.HasChannel(ChannelInApp) && d.inAppTTL > 0 {
		exp := now.Add(d.inAppTTL)
		rec.ExpiresAt = &exp
	}

	scheduledFor := cloneTime(p.ScheduledFor)
	if decision.DeferUntil != nil && (scheduledFor == nil || scheduledFor.Before(*decision.DeferUntil)) {
		scheduledFor = cloneTime(decision.DeferUntil)
	}
	rec.ScheduledFor = scheduledFor

	if scheduledFor != nil && scheduledFor.After(now) {
		if err := d.records.CreateRecord(ctx, rec); err != nil {
			return "", fmt.Errorf("failed to store notification: %w", err)
		}
		d.logger.LogAttrs(ctx, slog.LevelDebug, "notification deferred",
			logger.NotificationID(rec.ID),
			logger.UserID(r.UserID),
			slog.Time("scheduled_for", *scheduledFor),
		)
		return rec.ID, nil
	}

	// Entries are marked before the record is stored so a job can never
	// complete against an entry that still reads PENDING.
	rec.ProcessedAt = &now
	for i := range rec.Channels {
		event := EventEnqueued
		if rec.Channels[i].Channel == ChannelInApp {
			event = EventDelivered
		}
		next, _, err := applyCompletion(ctx, rec.Channels[i], Completion{Event: event, At: now})
		if err != nil {
			return "", err
		}
		rec.Channels[i] = next
	}
	rec.Status = OverallStatus(rec.Channels)

	if err := d.records.CreateRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to store notification: %w", err)
	}

	for _, entry := range rec.Channels {
		if entry.Channel == ChannelInApp {
			d.publish(ctx, rec)
			continue
		}
		d.enqueue(ctx, rec, entry.Channel, decision.PushTokens)
	}

	d.logger.LogAttrs(ctx, slog.LevelDebug, "notification dispatched",
		logger.NotificationID(rec.ID),
		logger.NotificationType(rec.Type.String()),
		logger.UserID(r.UserID),
		slog.Int("channels", len(rec.Channels)),
	)
	return rec.ID, nil
}

// promote moves every PENDING entry of a claimed record forward. It stops
// at the first entry it cannot advance; entries already advanced are skipped
// when the record is promoted again.
func (d *Dispatcher) promote(ctx context.Context, rec *Record, pushTokens []string) error {
	now := d.now()
	for _, entry := range rec.Channels {
		if entry.Status != StatusPending {
			continue
		}

		if entry.Channel == ChannelInApp {
			updated, err := d.agg.Apply(ctx, Completion{RecordID: rec.ID, Channel: ChannelInApp, Event: EventDelivered, At: now})
			if err != nil {
				return fmt.Errorf("failed to deliver in-app notification %s: %w", rec.ID, err)
			}
			d.publish(ctx, updated)
			continue
		}

		if _, err := d.agg.Apply(ctx, Completion{RecordID: rec.ID, Channel: entry.Channel, Event: EventEnqueued, At: now}); err != nil {
			return fmt.Errorf("failed to mark %s of %s queued: %w", entry.Channel, rec.ID, err)
		}
		d.enqueue(ctx, rec, entry.Channel, pushTokens)
	}
	return nil
}

// release hands a claimed record back to the poller after cause stopped its
// promotion.
func (d *Dispatcher) release(ctx context.Context, id string, cause error) error {
	err := d.records.ReleaseClaim(ctx, id)
	if err != nil {
		err = fmt.Errorf("failed to release record %s: %w", id, err)
	}
	d.logger.LogAttrs(ctx, slog.LevelError, "deferred notification promotion interrupted",
		logger.NotificationID(id),
		slog.Bool("released", err == nil),
		logger.Errors(cause, err),
	)
	return errors.Join(cause, err)
}

// enqueue puts the job for ch on its queue. The task id is derived from the
// record and channel, so a repeated enqueue is absorbed as a duplicate. A
// failed enqueue marks the entry FAILED.
func (d *Dispatcher) enqueue(ctx context.Context, rec *Record, ch Channel, pushTokens []string) {
	var tokens []string
	if ch == ChannelPush {
		tokens = pushTokens
	}

	policy := d.policies[ch]
	_, err := d.enqueuer.Enqueue(ctx, newJob(rec, ch, tokens),
		queue.WithTaskID(jobTaskID(rec.ID, ch)),
		queue.WithQueue(ch.Queue()),
		queue.WithTaskName(ch.Queue()),
		queue.WithPriority(rec.Priority.Weight()),
		queue.WithMaxAttempts(policy.MaxAttempts),
		queue.WithBackoff(policy.Backoff),
	)
	if err == nil || errors.Is(err, queue.ErrDuplicateTask) {
		return
	}

	d.logger.LogAttrs(ctx, slog.LevelError, "failed to enqueue channel job",
		logger.NotificationID(rec.ID),
		logger.Channel(ch.String()),
		logger.Error(err),
	)
	if _, aerr := d.agg.Apply(ctx, Completion{
		RecordID: rec.ID,
		Channel:  ch,
		Event:    EventFailed,
		Error:    "enqueue failed: " + err.Error(),
		At:       d.now(),
	}); aerr != nil {
		d.logger.LogAttrs(ctx, slog.LevelError, "failed to record enqueue failure",
			logger.NotificationID(rec.ID),
			logger.Channel(ch.String()),
			logger.Error(aerr),
		)
	}
}

func (d *Dispatcher) publish(ctx context.Context, rec *Record) {
	if d.feed == nil || rec == nil {
		return
	}
	if err := d.feed.Publish(ctx, rec); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to publish in-app notification",
			logger.NotificationID(rec.ID),
			logger.Error(err),
		)
	}
}

// fanOut runs fn over items in chunks of d.batchSize. Items of a chunk run
// concurrently; the next chunk starts when the previous one is collected.
// Failed items are logged and contribute no ids.
func fanOut[T any](ctx context.Context, d *Dispatcher, items []T, fn func(context.Context, T) ([]string, error)) ([]string, error) {
	var ids []string
	for start := 0; start < len(items); start += d.batchSize {
		if err := ctx.Err(); err != nil {
			return ids, err
		}

		chunk := items[start:min(start+d.batchSize, len(items))]
		futures := make([]*async.Future[[]string], len(chunk))
		for i, item := range chunk {
			futures[i] = async.Async(ctx, item, fn)
		}

		for i, f := range futures {
			got, err := f.Await()
			if err != nil {
				d.logger.LogAttrs(ctx, slog.LevelWarn, "batch entry failed",
					slog.Int("index", start+i),
					slog.Int("created", len(got)),
					logger.Error(err),
				)
			}
			// A partly failed entry still reports the records it created.
			ids = append(ids, got...)
		}
	}
	return ids, nil
}
