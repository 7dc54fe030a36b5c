package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/queue"
)

type receiptJob struct {
	BillID string `json:"bill_id"`
	Total  int    `json:"total"`
}

func TestNewTaskHandler(t *testing.T) {
	t.Parallel()

	var got receiptJob
	h := queue.NewTaskHandler(func(_ context.Context, job receiptJob) error {
		got = job
		return nil
	})
	assert.Equal(t, "queue_test.receiptJob", h.Name())

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"bill_id":"B-1","total":1250}`)))
	assert.Equal(t, receiptJob{BillID: "B-1", Total: 1250}, got)
}

func TestNewTaskHandler_PointerPayloadSharesName(t *testing.T) {
	t.Parallel()

	h := queue.NewTaskHandler(func(context.Context, *receiptJob) error { return nil })
	assert.Equal(t, "queue_test.receiptJob", h.Name())
}

func TestHandler_BadPayloadIsPermanent(t *testing.T) {
	t.Parallel()

	called := false
	h := queue.NewNamedTaskHandler("notify.email", func(context.Context, receiptJob) error {
		called = true
		return nil
	})
	err := h.Handle(context.Background(), json.RawMessage(`{"bill_id":`))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Contains(t, err.Error(), "notify.email")
	assert.False(t, called)
}

func TestHandler_ErrorsPassThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("smtp timeout")
	h := queue.NewNamedTaskHandler("notify.email", func(context.Context, receiptJob) error { return boom })
	err := h.Handle(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, boom)
	assert.False(t, queue.IsPermanent(err))
}

func TestNewPeriodicTaskHandler(t *testing.T) {
	t.Parallel()

	runs := 0
	h := queue.NewPeriodicTaskHandler("notify.promote_due", func(context.Context) error {
		runs++
		return nil
	})
	assert.Equal(t, "notify.promote_due", h.Name())
	require.NoError(t, h.Handle(context.Background(), nil))
	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`garbage`)))
	assert.Equal(t, 2, runs)
}
