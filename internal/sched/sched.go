// Package sched realizes the two-pool scheduling model from spec.md §5 on
// top of goroutines: a bounded IO pool gating blocking calls into the
// low-level Kafka client (the consumer's coroutine-exec offset commits),
// and a compute pool running
// deserialization and user receiver callbacks. Neither pool is a coroutine
// scheduler in its own right — spec.md treats that machinery as an
// external collaborator — but the acquire/release shape is lifted directly
// from the teacher's source/kafka.Controller token bucket.
package sched

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"
)

// IOPool bounds concurrent blocking operations against a topic's low-level
// client handle. Acquire blocks until a slot is free or ctx is done.
type IOPool struct {
	sem *semaphore.Weighted
}

// NewIOPool builds a pool allowing up to n concurrent blocking calls.
func NewIOPool(n int64) *IOPool {
	if n <= 0 {
		n = 1
	}
	return &IOPool{sem: semaphore.NewWeighted(n)}
}

// Acquire reserves one slot, suspending the caller until available or ctx
// is cancelled.
func (p *IOPool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// TryAcquire reserves one slot without blocking.
func (p *IOPool) TryAcquire() bool {
	return p.sem.TryAcquire(1)
}

// Release frees one previously acquired slot.
func (p *IOPool) Release() {
	p.sem.Release(1)
}

// ComputePool runs deserialization and receiver callbacks with bounded
// concurrency, one instance per ConsumerTopicEntry in either dispatch mode.
type ComputePool struct {
	p *pool.ContextPool
}

// NewComputePool builds a compute pool bound to ctx; work submitted after
// ctx is cancelled is not run. maxGoroutines caps concurrency; <= 0 means
// unbounded (one goroutine per Go call, matching conc's default).
func NewComputePool(ctx context.Context, maxGoroutines int) *ComputePool {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	if maxGoroutines > 0 {
		p = p.WithMaxGoroutines(maxGoroutines)
	}
	return &ComputePool{p: p}
}

// Go submits fn to run on the pool.
func (c *ComputePool) Go(fn func(context.Context) error) {
	c.p.Go(fn)
}

// Wait blocks until every submitted task has returned, propagating the
// first error (if WithCancelOnError fired, later tasks may have been
// skipped).
func (c *ComputePool) Wait() error {
	return c.p.Wait()
}
