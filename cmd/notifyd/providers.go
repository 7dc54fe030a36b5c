package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/posnotify/pkg/channels/email"
	"github.com/dmitrymomot/posnotify/pkg/channels/push"
	"github.com/dmitrymomot/posnotify/pkg/channels/sms"
	"github.com/dmitrymomot/posnotify/pkg/config"
	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// providers builds the delivery providers that are configured. EMAIL always
// has one (the dev sender outside production); PUSH and SMS are skipped when
// their credentials are missing and their jobs stay queued.
func (a *app) providers(ctx context.Context) (map[notifications.Channel]notifications.Provider, error) {
	out := make(map[notifications.Channel]notifications.Provider, 3)

	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, fmt.Errorf("failed to load email config: %w", err)
	}
	emailProvider, err := email.NewProviderFromConfig(emailCfg)
	if err != nil {
		return nil, err
	}
	out[notifications.ChannelEmail] = emailProvider

	var pushCfg push.Config
	if err := config.Load(&pushCfg); err != nil {
		return nil, fmt.Errorf("failed to load push config: %w", err)
	}
	if pushCfg.Enabled() {
		client, err := push.NewMessagingClient(ctx, pushCfg)
		if err != nil {
			return nil, err
		}
		out[notifications.ChannelPush] = push.NewProvider(client,
			push.WithStaleTokenHandler(a.dropPushTokens),
			push.WithLogger(a.logger),
		)
	} else {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "push provider is not configured",
			logger.Channel(notifications.ChannelPush.String()))
	}

	var smsCfg sms.Config
	if err := config.Load(&smsCfg); err != nil {
		return nil, fmt.Errorf("failed to load sms config: %w", err)
	}
	if smsCfg.GatewayURL == "" {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "sms provider is not configured",
			logger.Channel(notifications.ChannelSMS.String()))
		return out, nil
	}
	smsProvider, err := sms.NewProvider(smsCfg, sms.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	out[notifications.ChannelSMS] = smsProvider

	return out, nil
}

// dropPushTokens forgets tokens FCM reported as unregistered.
func (a *app) dropPushTokens(ctx context.Context, userID string, tokens []string) {
	for _, token := range tokens {
		if err := a.manager.RemovePushToken(ctx, userID, token); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove stale push token",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}
}
