package notifications

import (
	"time"

	"github.com/dmitrymomot/posnotify/pkg/queue"
)

// Config holds the dispatch engine settings.
type Config struct {
	BatchSize       int           `env:"NOTIFY_BATCH_SIZE" envDefault:"100"`
	InAppTTL        time.Duration `env:"NOTIFY_INAPP_TTL" envDefault:"720h"`
	PromoteInterval time.Duration `env:"NOTIFY_PROMOTE_INTERVAL" envDefault:"30s"`
	PromoteLimit    int           `env:"NOTIFY_PROMOTE_LIMIT" envDefault:"500"`
	PreferenceCache int           `env:"NOTIFY_PREFERENCE_CACHE_SIZE" envDefault:"10000"`
	PreferenceTTL   time.Duration `env:"NOTIFY_PREFERENCE_CACHE_TTL" envDefault:"1m"`
	LiveFeedBuffer  int           `env:"NOTIFY_LIVE_FEED_BUFFER" envDefault:"16"`

	EmailTimeout     time.Duration `env:"NOTIFY_EMAIL_TIMEOUT" envDefault:"30s"`
	EmailMaxAttempts int8          `env:"NOTIFY_EMAIL_MAX_ATTEMPTS" envDefault:"3"`
	EmailBackoff     time.Duration `env:"NOTIFY_EMAIL_BACKOFF" envDefault:"2s"`

	PushTimeout     time.Duration `env:"NOTIFY_PUSH_TIMEOUT" envDefault:"5s"`
	PushMaxAttempts int8          `env:"NOTIFY_PUSH_MAX_ATTEMPTS" envDefault:"3"`
	PushBackoff     time.Duration `env:"NOTIFY_PUSH_BACKOFF" envDefault:"1s"`

	SMSTimeout     time.Duration `env:"NOTIFY_SMS_TIMEOUT" envDefault:"5s"`
	SMSMaxAttempts int8          `env:"NOTIFY_SMS_MAX_ATTEMPTS" envDefault:"2"`
	SMSBackoff     time.Duration `env:"NOTIFY_SMS_BACKOFF" envDefault:"5s"`
}

// RetryPolicy returns the configured policy for ch.
func (c Config) RetryPolicy(ch Channel) RetryPolicy {
	switch ch {
	case ChannelEmail:
		return RetryPolicy{MaxAttempts: c.EmailMaxAttempts, Backoff: queue.ExponentialBackoff(c.EmailBackoff)}
	case ChannelPush:
		return RetryPolicy{MaxAttempts: c.PushMaxAttempts, Backoff: queue.ExponentialBackoff(c.PushBackoff)}
	case ChannelSMS:
		return RetryPolicy{MaxAttempts: c.SMSMaxAttempts, Backoff: queue.FixedBackoff(c.SMSBackoff)}
	}
	return DefaultRetryPolicy(ch)
}

// Timeout returns the configured provider call bound for ch.
func (c Config) Timeout(ch Channel) time.Duration {
	switch ch {
	case ChannelEmail:
		return c.EmailTimeout
	case ChannelPush:
		return c.PushTimeout
	case ChannelSMS:
		return c.SMSTimeout
	}
	return DefaultTimeout(ch)
}

// GateOptions turns the config into gate options.
func (c Config) GateOptions() []GateOption {
	return []GateOption{
		WithGateCacheSize(c.PreferenceCache),
		WithGateCacheTTL(c.PreferenceTTL),
	}
}

// DispatcherOptions turns the config into dispatcher options.
func (c Config) DispatcherOptions() []DispatcherOption {
	opts := []DispatcherOption{
		WithBatchSize(c.BatchSize),
		WithInAppTTL(c.InAppTTL),
	}
	for _, ch := range []Channel{ChannelEmail, ChannelPush, ChannelSMS} {
		opts = append(opts, WithRetryPolicy(ch, c.RetryPolicy(ch)))
	}
	return opts
}
