package dag

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// workerPool bounds how many OffloadToWorker callables may run at
// once, back-pressuring further offloads until a slot frees up.
type workerPool struct {
	sem *semaphore.Weighted
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 8
	}
	return &workerPool{sem: semaphore.NewWeighted(int64(size))}
}

// run executes fn on the pool, blocking until a slot is available or
// ctx is done.
func (p *workerPool) run(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return fn()
}
