package async

import (
	"context"
	"errors"
)

// Future holds the outcome of a function running in its own goroutine.
type Future[U any] struct {
	done   chan struct{}
	result U
	err    error
}

// Async calls fn(ctx, param) in a new goroutine. If ctx is already done fn is
// never called and the future resolves to ctx.Err().
func Async[T, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx, param)
	}()
	return f
}

// Run is Async for functions that take no parameter.
func Run[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	return Async(ctx, fn, func(ctx context.Context, fn func(context.Context) (U, error)) (U, error) {
		return fn(ctx)
	})
}

// Done is closed once the result is available.
func (f *Future[U]) Done() <-chan struct{} { return f.done }

// Await blocks until the function returns.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext is Await bounded by ctx. Giving up does not stop the function.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, errors.Join(ErrAbandoned, ctx.Err())
	}
}

// WaitAll awaits every future and returns results in input order. Failed
// futures leave a zero value in their slot; their errors are joined.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))
	var errs []error
	for i, f := range futures {
		res, err := f.Await()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = res
	}
	return results, errors.Join(errs...)
}
