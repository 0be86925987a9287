package contentgraph

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Task is one independent side effect of a fan-out.
type Task func(ctx context.Context) error

// FanOut runs independent tasks concurrently and joins on all of them.
//
// A failing task never cancels its siblings: every task runs to completion
// and every failure is reported. Tasks that find the context already done
// when they are scheduled are reported as failed with the context error.
type FanOut struct {
	// MaxConcurrency bounds the goroutines of one Run; 0 means unbounded.
	MaxConcurrency int
	Metrics        *Metrics
}

// Run executes tasks and blocks until all of them have returned. It returns
// nil or a *PartialFailureError naming op.
func (f FanOut) Run(ctx context.Context, op string, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	p := pool.New()
	if f.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(f.MaxConcurrency)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, task := range tasks {
		p.Go(func() {
			err := ctx.Err()
			if err == nil {
				err = task(ctx)
			}
			f.Metrics.observeTask(op, err)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	p.Wait()

	if len(errs) == 0 {
		return nil
	}
	return &PartialFailureError{Op: op, Attempted: len(tasks), Errs: errs}
}

// ForEach runs fn for every item through f.
func ForEach[T any](ctx context.Context, f FanOut, op string, items []T, fn func(context.Context, T) error) error {
	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, func(ctx context.Context) error {
			return fn(ctx, item)
		})
	}
	return f.Run(ctx, op, tasks...)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
