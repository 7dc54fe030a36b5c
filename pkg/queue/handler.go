package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handler processes the tasks registered under Name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type (
	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler handles tasks named after the payload type, the name
// Enqueue gives a task when WithTaskName is not used.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var zero T
	return NewNamedTaskHandler(payloadName(zero), fn)
}

// NewNamedTaskHandler lets one payload type back several task kinds, such as
// one job type per delivery channel.
func NewNamedTaskHandler[T any](name string, fn TaskHandlerFunc[T]) Handler {
	return handlerFunc{name: name, fn: func(ctx context.Context, raw json.RawMessage) error {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			// a payload that cannot be decoded now never will be
			return Permanent(fmt.Errorf("decode %s payload: %w", name, err))
		}
		return fn(ctx, payload)
	}}
}

// NewPeriodicTaskHandler handles the tasks a Scheduler creates for name.
func NewPeriodicTaskHandler(name string, fn PeriodicTaskHandlerFunc) Handler {
	return handlerFunc{name: name, fn: func(ctx context.Context, _ json.RawMessage) error {
		return fn(ctx)
	}}
}

type handlerFunc struct {
	name string
	fn   func(context.Context, json.RawMessage) error
}

func (h handlerFunc) Name() string { return h.name }

func (h handlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return h.fn(ctx, payload)
}

// payloadName is the package-qualified type name of v, without pointer stars.
func payloadName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
