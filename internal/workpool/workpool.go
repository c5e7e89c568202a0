// Package workpool implements the shared, bounded-concurrency thread
// pool spec §5 describes: "I/O is asynchronous internally; the public
// API is blocking functions that internally drive a parallel thread
// pool for column decode, index probe, and KNN partition search."
//
// A Pool is sized once, at dataset Open, to GOMAXPROCS (itself resolved
// by automaxprocs on container hosts) and shared across every blocking
// call a Dataset serves; callers never construct their own per-call
// goroutine fan-out. Per spec §5's fork-safety note, a Pool must never
// be used across a fork(): child processes are expected to call Open
// fresh rather than inherit one.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many goroutines may run concurrently across every
// caller sharing it, via a weighted semaphore sized at construction.
type Pool struct {
	sem *semaphore.Weighted
	n   int64
}

// New returns a Pool allowing up to maxConcurrency goroutines at once.
// maxConcurrency <= 0 is treated as 1 (no parallelism, still safe to call).
func New(maxConcurrency int) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(maxConcurrency)), n: int64(maxConcurrency)}
}

// Limit reports the pool's configured concurrency.
func (p *Pool) Limit() int {
	return int(p.n)
}

// Go runs every task, each gated by the pool's semaphore, and waits for
// all of them. The first task error cancels the derived context passed
// to every other task and is returned; all other errors are discarded,
// matching errgroup.Group's usual "first error wins" contract.
func (p *Pool) Go(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		if err := p.sem.Acquire(gctx, 1); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			return task(gctx)
		})
	}
	return g.Wait()
}

// Map runs fn over every item with bounded concurrency and returns the
// results in input order. The first error cancels remaining work and is
// returned; partial results are discarded on error since no caller in
// this engine (fragment encode, blob handle resolution) can make use of
// a partially-filled batch.
func Map[T any, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	tasks := make([]func(ctx context.Context) error, len(items))
	for i, item := range items {
		i, item := i, item
		tasks[i] = func(ctx context.Context) error {
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		}
	}
	if err := p.Go(ctx, tasks...); err != nil {
		return nil, err
	}
	return out, nil
}
