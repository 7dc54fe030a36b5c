package push

import "errors"

var (
	ErrInvalidConfig  = errors.New("push: invalid config")
	ErrDeliveryFailed = errors.New("push: delivery failed for every token")
	ErrNotConfigured  = errors.New("push: firebase credentials are not configured")
)
