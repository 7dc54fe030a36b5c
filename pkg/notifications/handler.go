package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/queue"
)

// channelHandler is the worker side of one channel queue.
type channelHandler struct {
	channel  Channel
	provider Provider
	agg      *Aggregator
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	reportAttempts int
	reportBackoff  queue.Backoff
}

// HandlerOption configures a channel handler.
type HandlerOption func(*channelHandler)

// WithHandlerTimeout bounds every provider call.
func WithHandlerTimeout(d time.Duration) HandlerOption {
	return func(h *channelHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHandlerLogger sets the logger for the handler.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *channelHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHandlerClock overrides the time source stamped on completions.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *channelHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHandlerStatusRetries sets how many times a status write is tried and
// the backoff between tries. A delivery that cannot be recorded is otherwise
// lost once the task has no attempts left.
func WithHandlerStatusRetries(attempts int, b queue.Backoff) HandlerOption {
	return func(h *channelHandler) {
		if attempts > 0 {
			h.reportAttempts = attempts
			h.reportBackoff = b
		}
	}
}

// DefaultTimeout is the provider call bound used when none is configured.
func DefaultTimeout(ch Channel) time.Duration {
	if ch == ChannelEmail {
		return 30 * time.Second
	}
	return 5 * time.Second
}

// NewChannelHandler returns the queue handler that delivers ch jobs through p
// and reports every outcome to agg.
func NewChannelHandler(ch Channel, p Provider, agg *Aggregator, opts ...HandlerOption) (queue.Handler, error) {
	if !ch.Queued() {
		return nil, fmt.Errorf("%w: %q has no queue", ErrUnknownChannel, ch)
	}
	if p == nil || agg == nil {
		return nil, ErrNilDependency
	}

	h := &channelHandler{
		channel:  ch,
		provider: p,
		agg:      agg,
		timeout:  DefaultTimeout(ch),
		now:      time.Now,
		logger:   slog.Default(),

		reportAttempts: 3,
		reportBackoff:  queue.ExponentialBackoff(100 * time.Millisecond),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("handler"), logger.Channel(ch.String()))

	return queue.NewNamedTaskHandler(ch.Queue(), h.handle), nil
}

// handle makes one delivery attempt. A nil return completes the task; an
// error lets the queue retry it, unless it is the last attempt or permanent.
func (h *channelHandler) handle(ctx context.Context, job Job) error {
	info, ok := queue.TaskInfoFromContext(ctx)
	if !ok {
		info = queue.TaskInfo{Attempt: 1, MaxAttempts: 1}
	}

	res, sendErr := h.send(ctx, job)

	now := h.now()
	if sendErr == nil {
		err := h.report(ctx, Completion{
			RecordID:   job.RecordID,
			Channel:    h.channel,
			Event:      EventDelivered,
			ExternalID: res.ExternalID,
			RetryCount: info.Attempt - 1,
			At:         now,
		})
		if err != nil {
			h.logger.LogAttrs(ctx, slog.LevelError, "delivered but failed to record status",
				logger.NotificationID(job.RecordID),
				logger.Attempt(info.Attempt),
				logger.Error(err),
			)
			return fmt.Errorf("delivered but failed to record status: %w", err)
		}
		h.logger.LogAttrs(ctx, slog.LevelDebug, "channel delivered",
			logger.NotificationID(job.RecordID),
			logger.Attempt(info.Attempt),
		)
		return nil
	}

	if isPermanentDeliveryError(sendErr) || info.LastAttempt() {
		err := h.report(ctx, Completion{
			RecordID:   job.RecordID,
			Channel:    h.channel,
			Event:      EventFailed,
			Error:      sendErr.Error(),
			RetryCount: info.Attempt,
			At:         now,
		})
		if err != nil {
			h.logger.LogAttrs(ctx, slog.LevelError, "failed to record terminal failure",
				logger.NotificationID(job.RecordID),
				logger.Error(err),
			)
		}
		return queue.Permanent(sendErr)
	}

	next := info.RetryAt(now)
	_, err := h.agg.Apply(ctx, Completion{
		RecordID:    job.RecordID,
		Channel:     h.channel,
		Event:       EventRetrying,
		Error:       sendErr.Error(),
		RetryCount:  info.Attempt,
		NextRetryAt: &next,
		At:          now,
	})
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record retry",
			logger.NotificationID(job.RecordID),
			logger.Error(err),
		)
	}

	h.logger.LogAttrs(ctx, slog.LevelWarn, "channel delivery attempt failed",
		logger.NotificationID(job.RecordID),
		logger.Attempt(info.Attempt),
		slog.Time("next_retry_at", next),
		logger.Error(sendErr),
	)
	return sendErr
}

// send calls the provider under the handler timeout. A provider panic is
// returned as an error so the attempt is accounted like any other failure.
func (h *channelHandler) send(ctx context.Context, job Job) (res Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
	}()
	return h.provider.Send(ctx, job)
}

// report applies c, retrying failed store writes. Outcomes the record cannot
// take are returned at once.
func (h *channelHandler) report(ctx context.Context, c Completion) error {
	var err error
	for attempt := 1; ; attempt++ {
		if _, err = h.agg.Apply(ctx, c); err == nil || !retryableReport(err) || attempt >= h.reportAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(h.reportBackoff.Next(attempt)):
		}
	}
}

func retryableReport(err error) bool {
	return !errors.Is(err, ErrRecordNotFound) &&
		!errors.Is(err, ErrChannelNotOnRecord) &&
		!errors.Is(err, ErrInvalidTransition) &&
		!errors.Is(err, ErrAggregatorClosed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// isPermanentDeliveryError reports failures that another attempt cannot fix.
// Providers may also mark their own errors with queue.Permanent.
func isPermanentDeliveryError(err error) bool {
	return queue.IsPermanent(err) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrMissingContact) ||
		errors.Is(err, ErrNoPushTokens)
}
