package sms

import "errors"

var (
	ErrInvalidConfig  = errors.New("sms: invalid config")
	ErrCircuitOpen    = errors.New("sms: gateway circuit breaker is open")
	ErrGatewayFailure = errors.New("sms: gateway request failed")
	ErrRejected       = errors.New("sms: gateway rejected the message")
)
