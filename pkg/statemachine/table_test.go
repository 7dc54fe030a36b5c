package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/statemachine"
)

const (
	open     = statemachine.StringState("open")
	paid     = statemachine.StringState("paid")
	refunded = statemachine.StringState("refunded")
	voided   = statemachine.StringState("voided")

	pay    = statemachine.StringEvent("pay")
	refund = statemachine.StringEvent("refund")
	void   = statemachine.StringEvent("void")
)

type bill struct {
	total    int
	log      []string
	refunded int
}

func record(name string) statemachine.Action {
	return func(_ context.Context, from, to statemachine.State, _ statemachine.Event, data any) error {
		b := data.(*bill)
		b.log = append(b.log, name+":"+from.Name()+"->"+to.Name())
		return nil
	}
}

func billTable() *statemachine.Table {
	small := func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		return data.(*bill).total < 100
	}
	return statemachine.MustNewTable(
		statemachine.Transition{From: open, To: paid, Event: pay, Actions: []statemachine.Action{record("charge"), record("receipt")}},
		statemachine.Transition{From: open, To: voided, Event: void},
		statemachine.Transition{From: paid, To: refunded, Event: refund, Guards: []statemachine.Guard{small}, Actions: []statemachine.Action{
			func(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
				b := data.(*bill)
				b.refunded = b.total
				return nil
			},
		}},
	)
}

func TestTable_Fire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	table := billTable()

	t.Run("runs actions in order", func(t *testing.T) {
		t.Parallel()
		b := &bill{total: 40}
		next, err := table.Fire(ctx, open, pay, b)
		require.NoError(t, err)
		assert.Equal(t, paid, next)
		assert.Equal(t, []string{"charge:open->paid", "receipt:open->paid"}, b.log)
	})

	t.Run("unknown transition", func(t *testing.T) {
		t.Parallel()
		next, err := table.Fire(ctx, voided, pay, &bill{})
		require.Error(t, err)
		assert.True(t, statemachine.IsNoTransitionAvailableError(err))
		assert.Equal(t, voided, next)
	})

	t.Run("guard rejects", func(t *testing.T) {
		t.Parallel()
		b := &bill{total: 250}
		next, err := table.Fire(ctx, paid, refund, b)
		require.Error(t, err)
		assert.True(t, statemachine.IsTransitionRejectedError(err))
		assert.False(t, statemachine.IsNoTransitionAvailableError(err))
		assert.Equal(t, paid, next)
		assert.Zero(t, b.refunded)
	})

	t.Run("guard passes", func(t *testing.T) {
		t.Parallel()
		b := &bill{total: 60}
		next, err := table.Fire(ctx, paid, refund, b)
		require.NoError(t, err)
		assert.Equal(t, refunded, next)
		assert.Equal(t, 60, b.refunded)
	})

	t.Run("nil inputs", func(t *testing.T) {
		t.Parallel()
		_, err := table.Fire(ctx, nil, pay, nil)
		assert.ErrorIs(t, err, statemachine.ErrInvalidEvent)
	})
}

func TestTable_ActionError(t *testing.T) {
	t.Parallel()

	declined := errors.New("card declined")
	table := statemachine.MustNewTable(statemachine.Transition{
		From: open, To: paid, Event: pay,
		Actions: []statemachine.Action{
			func(context.Context, statemachine.State, statemachine.State, statemachine.Event, any) error { return declined },
			record("never"),
		},
	})

	b := &bill{}
	next, err := table.Fire(context.Background(), open, pay, b)
	assert.ErrorIs(t, err, declined)
	assert.Equal(t, open, next)
	assert.Empty(t, b.log)
}

func TestTable_FirstPassingGuardWins(t *testing.T) {
	t.Parallel()

	deny := func(context.Context, statemachine.State, statemachine.Event, any) bool { return false }
	table := statemachine.MustNewTable(
		statemachine.Transition{From: open, To: voided, Event: pay, Guards: []statemachine.Guard{deny}},
		statemachine.Transition{From: open, To: paid, Event: pay},
	)

	next, err := table.Fire(context.Background(), open, pay, nil)
	require.NoError(t, err)
	assert.Equal(t, paid, next)
}

func TestTable_CanFire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	table := billTable()

	b := &bill{total: 10}
	assert.True(t, table.CanFire(ctx, open, pay, b))
	assert.True(t, table.CanFire(ctx, paid, refund, b))
	assert.False(t, table.CanFire(ctx, paid, refund, &bill{total: 500}))
	assert.False(t, table.CanFire(ctx, refunded, void, b))
	assert.False(t, table.CanFire(ctx, nil, void, b))
	assert.Empty(t, b.log, "CanFire must not run actions")
}

func TestNewTable_Invalid(t *testing.T) {
	t.Parallel()

	_, err := statemachine.NewTable(statemachine.Transition{From: open, Event: pay})
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	assert.Panics(t, func() {
		statemachine.MustNewTable(statemachine.Transition{To: paid, Event: pay})
	})
}

func TestTable_Concurrent(t *testing.T) {
	t.Parallel()
	table := billTable()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := &bill{total: 5}
			s, err := table.Fire(context.Background(), open, pay, b)
			if assert.NoError(t, err) {
				s, err = table.Fire(context.Background(), s, refund, b)
				assert.NoError(t, err)
				assert.Equal(t, refunded, s)
			}
		}()
	}
	wg.Wait()
}
