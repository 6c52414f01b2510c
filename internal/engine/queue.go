package engine

// workQueue is a FIFO of pending items for the powerset constructions.
//
// The queue is unbounded: every new state of a determinization enqueues
// itself once, and states discovered while draining are appended behind
// the current one.
type workQueue[T any] struct {
	items []T
}

func newWorkQueue[T any]() *workQueue[T] {
	return &workQueue[T]{items: make([]T, 0, 16)}
}

// Push adds an item to the back of the queue.
func (q *workQueue[T]) Push(v T) {
	q.items = append(q.items, v)
}

// Pop removes and returns the front item. It reports false when the queue
// is empty.
func (q *workQueue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]

	// Clear the slot so the backing array does not pin the item.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Len returns the number of queued items.
func (q *workQueue[T]) Len() int { return len(q.items) }
