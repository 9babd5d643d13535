package batch

import "sync"

// retryQueue is an unbounded FIFO of tasks awaiting re-dispatch. Tasks
// are pushed from completion goroutines and popped by the dispatch loop,
// so access is mutex-guarded.
type retryQueue struct {
	mu    sync.Mutex
	tasks []*task
}

func newRetryQueue() *retryQueue {
	return &retryQueue{}
}

func (q *retryQueue) push(t *task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

// pop removes and returns the oldest task, or reports false when empty.
func (q *retryQueue) pop() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
