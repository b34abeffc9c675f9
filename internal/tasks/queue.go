package tasks

import (
	"context"
	"sync"
)

// Queue carries tasks from a Dispatcher to workers.
type Queue interface {
	// Enqueue hands t over without waiting for it to run.
	Enqueue(ctx context.Context, t Task) error
	// Consume calls fn for every delivered task until ctx is done.
	Consume(ctx context.Context, fn func(context.Context, Task)) error
	Close() error
}

// LocalQueue is a bounded in-process queue served by a fixed number of
// worker goroutines.
type LocalQueue struct {
	workers int
	work    chan Task

	mu     sync.Mutex
	closed bool
}

// NewLocalQueue creates a queue buffering up to size tasks.
func NewLocalQueue(workers, size int) *LocalQueue {
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 100
	}
	return &LocalQueue{workers: workers, work: make(chan Task, size)}
}

// Enqueue never blocks; a full buffer returns ErrQueueFull.
func (q *LocalQueue) Enqueue(_ context.Context, t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.work <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume runs the workers and blocks until ctx is done or the queue is
// closed and drained.
func (q *LocalQueue) Consume(ctx context.Context, fn func(context.Context, Task)) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-q.work:
					if !ok {
						return
					}
					fn(ctx, t)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Depth returns the number of buffered tasks.
func (q *LocalQueue) Depth() int { return len(q.work) }

// Close stops accepting tasks. Buffered tasks are still delivered.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.work)
	}
	return nil
}
