package notifications

import "errors"

var (
	// Validation failures, returned synchronously by the dispatcher.
	ErrNoRecipients     = errors.New("notifications: recipient spec resolved to no recipients")
	ErrTemplateRequired = errors.New("notifications: template id is required")
	ErrUnknownType      = errors.New("notifications: unknown notification type")
	ErrUnknownChannel   = errors.New("notifications: unknown channel")
	ErrNoChannels       = errors.New("notifications: at least one channel is required")
	ErrInvalidPriority  = errors.New("notifications: invalid priority")
	ErrInvalidPayload   = errors.New("notifications: invalid payload")
	ErrInvalidTimezone  = errors.New("notifications: invalid quiet hours timezone")
	ErrInvalidClock     = errors.New("notifications: quiet hours must be HH:MM")

	// Storage.
	ErrRecordNotFound     = errors.New("notifications: record not found")
	ErrPreferenceNotFound = errors.New("notifications: preference not found")
	ErrVersionConflict    = errors.New("notifications: record was modified concurrently")
	ErrAlreadyClaimed     = errors.New("notifications: record already claimed for processing")
	ErrPushTokenNotFound  = errors.New("notifications: push token not found")

	// Lifecycle.
	ErrInvalidTransition  = errors.New("notifications: invalid channel status transition")
	ErrChannelNotOnRecord = errors.New("notifications: channel is not part of the record")
	ErrNotDeferred        = errors.New("notifications: record is no longer deferred")
	ErrAggregatorClosed   = errors.New("notifications: status aggregator is stopped")

	// Delivery.
	ErrTemplateNotFound = errors.New("notifications: template not found")
	ErrNoPushTokens     = errors.New("notifications: recipient has no push tokens")
	ErrMissingContact   = errors.New("notifications: recipient has no contact for channel")
	ErrProviderPanic    = errors.New("notifications: provider panicked")
	ErrNilDependency    = errors.New("notifications: required dependency is nil")
)
