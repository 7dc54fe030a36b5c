// Package logger builds slog loggers for the notification services and
// defines the attribute helpers they log with.
//
//	log := logger.New(logger.WithEnvironment(os.Getenv("APP_ENV"), "notifyd"))
//	logger.SetAsDefault(log)
//
//	log.LogAttrs(ctx, slog.LevelInfo, "delivered",
//		logger.NotificationID(rec.ID),
//		logger.Channel("EMAIL"),
//		logger.Attempt(1),
//	)
//
// Helpers such as Error and UserID return an empty attribute for nil input,
// which slog drops, so callers can pass them unconditionally.
//
// WithContextValue and WithContextExtractors copy request-scoped values from
// the context into every record logged with it.
package logger
