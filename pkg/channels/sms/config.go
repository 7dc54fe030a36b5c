package sms

import "time"

// Config describes the SMS gateway.
type Config struct {
	GatewayURL      string        `env:"SMS_GATEWAY_URL"`
	APIKey          string        `env:"SMS_API_KEY"`
	SenderID        string        `env:"SMS_SENDER_ID" envDefault:"POSNOTIFY"`
	SigningSecret   string        `env:"SMS_SIGNING_SECRET"`
	BreakerFailures int           `env:"SMS_BREAKER_FAILURES" envDefault:"5"`
	BreakerRecovery time.Duration `env:"SMS_BREAKER_RECOVERY" envDefault:"30s"`
}
