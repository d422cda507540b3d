// Package pool runs batches of independent tasks on a bounded set of slots
// shared by every caller in the process.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks run at once across all Map calls.
// Tasks must not submit work back into the same Pool.
type Pool struct {
	sem         *semaphore.Weighted
	size        int
	taskTimeout time.Duration
}

// New creates a Pool with size slots. size <= 0 uses GOMAXPROCS. A zero
// taskTimeout leaves tasks bounded only by the caller's context.
func New(size int, taskTimeout time.Duration) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		sem:         semaphore.NewWeighted(int64(size)),
		size:        size,
		taskTimeout: taskTimeout,
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Result pairs one task's value with its error.
type Result[T any] struct {
	Value T
	Err   error
}

// Map runs fn for every item and returns one Result per item, in input
// order. A failing task never cancels its siblings; cancelling ctx stops
// queued tasks and is visible to running ones.
func Map[In, Out any](ctx context.Context, p *Pool, items []In, fn func(ctx context.Context, item In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(items))

	var g errgroup.Group
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				results[i].Err = eris.Wrap(err, "pool: acquire slot")
				return nil
			}
			defer p.sem.Release(1)

			if err := ctx.Err(); err != nil {
				results[i].Err = eris.Wrap(err, "pool: canceled before start")
				return nil
			}
			results[i].Value, results[i].Err = run(ctx, p, item, fn)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pool) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.taskTimeout > 0 {
		return context.WithTimeout(ctx, p.taskTimeout)
	}
	return context.WithCancel(ctx)
}

func run[In, Out any](ctx context.Context, p *Pool, item In, fn func(context.Context, In) (Out, error)) (out Out, err error) {
	taskCtx, cancel := p.runCtx(ctx)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("pool: task panicked: %v", r))
		}
	}()

	return fn(taskCtx, item)
}

// Errors collects the non-nil errors from results.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
