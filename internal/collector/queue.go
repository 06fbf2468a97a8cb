package collector

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of collection jobs. Producers never block;
// consumers block in Pop until a job arrives or their context ends.
type Queue struct {
	mu    sync.Mutex
	items []Job
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Push(job Job) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest job. The bool is false only when ctx ended before
// a job became available.
func (q *Queue) Pop(ctx context.Context) (Job, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				// More work pending: keep the signal hot for the
				// next consumer.
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return job, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return Job{}, false
		case <-q.ready:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
