package notifications_test

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/queue"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg notifications.Config
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 720*time.Hour, cfg.InAppTTL)
	assert.Equal(t, time.Minute, cfg.PreferenceTTL)
	assert.Len(t, cfg.GateOptions(), 2)
	assert.Equal(t, notifications.DefaultRetryPolicy(notifications.ChannelEmail), cfg.RetryPolicy(notifications.ChannelEmail))
	assert.Equal(t, notifications.DefaultRetryPolicy(notifications.ChannelPush), cfg.RetryPolicy(notifications.ChannelPush))
	assert.Equal(t, notifications.DefaultRetryPolicy(notifications.ChannelSMS), cfg.RetryPolicy(notifications.ChannelSMS))
	assert.Equal(t, 30*time.Second, cfg.Timeout(notifications.ChannelEmail))
	assert.Equal(t, 5*time.Second, cfg.Timeout(notifications.ChannelSMS))
}

func TestConfig_Overrides(t *testing.T) {
	t.Setenv("NOTIFY_SMS_MAX_ATTEMPTS", "4")
	t.Setenv("NOTIFY_SMS_BACKOFF", "10s")
	t.Setenv("NOTIFY_EMAIL_TIMEOUT", "1m")

	var cfg notifications.Config
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, notifications.RetryPolicy{MaxAttempts: 4, Backoff: queue.FixedBackoff(10 * time.Second)}, cfg.RetryPolicy(notifications.ChannelSMS))
	assert.Equal(t, time.Minute, cfg.Timeout(notifications.ChannelEmail))
	assert.Len(t, cfg.DispatcherOptions(), 5)
}
