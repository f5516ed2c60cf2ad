package cfg

import "sync"

// worklist is a LIFO of block handles shared by the exploration workers.
// It is finished when it is empty and no worker holds an item, or when it
// was closed.
type worklist struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Handle
	active int
	closed bool
}

func newWorklist() *worklist {
	w := &worklist{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *worklist) push(h Handle) {
	w.mu.Lock()
	w.items = append(w.items, h)
	w.mu.Unlock()
	w.cond.Signal()
}

// pop waits for an item. The caller must call release once it is done with
// the returned handle. ok is false when no more work will arrive.
func (w *worklist) pop() (h Handle, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.items) == 0 && !w.closed {
		if w.active == 0 {
			w.closed = true
			w.cond.Broadcast()
			break
		}
		w.cond.Wait()
	}
	if w.closed {
		return NoHandle, false
	}
	h = w.items[len(w.items)-1]
	w.items = w.items[:len(w.items)-1]
	w.active++
	return h, true
}

func (w *worklist) release() {
	w.mu.Lock()
	w.active--
	w.mu.Unlock()
	// Waiters re-check for termination or new items.
	w.cond.Broadcast()
}

func (w *worklist) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}
