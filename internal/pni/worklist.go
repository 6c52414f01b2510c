package pni

// worklist is a FIFO of constraint ids that ignores ids already queued.
type worklist struct {
	items  []int
	queued map[int]bool
}

func newWorklist() *worklist {
	return &worklist{
		items:  make([]int, 0, 16),
		queued: make(map[int]bool),
	}
}

// push enqueues id unless it is already waiting.
func (w *worklist) push(id int) {
	if w.queued[id] {
		return
	}
	w.queued[id] = true
	w.items = append(w.items, id)
}

// pop removes the oldest id.
func (w *worklist) pop() (int, bool) {
	if len(w.items) == 0 {
		return 0, false
	}
	id := w.items[0]
	w.items = w.items[1:]
	delete(w.queued, id)
	return id, true
}

// Len returns the number of queued ids.
func (w *worklist) Len() int {
	return len(w.items)
}
