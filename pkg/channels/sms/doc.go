// Package sms delivers SMS channel jobs to an HTTP gateway.
//
// Every job is one POST of {to, from, template, data, reference} to
// <SMS_GATEWAY_URL>/messages, authenticated with a bearer key and optionally
// signed with HMAC-SHA256 over "<timestamp>.<body>". The record id is sent as
// the Idempotency-Key so a retried job is not delivered twice. The gateway
// answers 2xx with {"message_id": "..."}; a 4xx with
// {"error": "template_not_found"} maps to notifications.ErrTemplateNotFound and
// other 4xx answers are permanent. 408, 425, 429, 5xx and transport errors are
// retried by the queue and count towards the circuit breaker.
package sms
