package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Queue carries job ids from Submit to the workers. The jobs table stays the source of truth.
type Queue interface {
	Push(ctx context.Context, id uuid.UUID) error
	// Run blocks, feeding ids to fn from the given number of workers until ctx is done.
	Run(ctx context.Context, workers int, fn func(ctx context.Context, id uuid.UUID))
}

var ErrQueueFull = errors.New("job queue is full")

// MemoryQueue is an in-process buffered queue. Ids pushed while it is full stay PENDING
// in the database and are picked up by Recover.
type MemoryQueue struct {
	ch chan uuid.UUID
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan uuid.UUID, buffer)}
}

func (q *MemoryQueue) Push(ctx context.Context, id uuid.UUID) error {
	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Run(ctx context.Context, workers int, fn func(ctx context.Context, id uuid.UUID)) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-q.ch:
					fn(ctx, id)
				}
			}
		}()
	}
	wg.Wait()
}
