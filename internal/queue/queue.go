package queue

import (
	"sync"

	"github.com/cheervox-labs/cheervox/internal/cheer"
)

// Queue is an unbounded FIFO hand-off between the ingestion side and the
// single processing loop. Push never blocks the producer; Pop suspends the
// consumer until an item arrives or the queue is closed. There is no
// backlog limit: a sustained arrival rate higher than the processing rate
// grows memory without bound, which is an accepted trade-off.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []cheer.Task
	closed bool
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a task. Pushing to a closed queue is a no-op.
func (q *Queue) Push(task cheer.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, task)
	q.cond.Signal()
}

// Pop removes the oldest task, blocking while the queue is empty. The
// second return value is false once the queue is closed and drained.
func (q *Queue) Pop() (cheer.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return cheer.Task{}, false
	}
	task := q.items[0]
	q.items = q.items[1:]
	return task, true
}

// Len reports the current backlog.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes any blocked consumer. Items already queued remain poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
