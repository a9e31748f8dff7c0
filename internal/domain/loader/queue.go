package loader

import (
	"sync"
)

type task struct {
	row      Row
	id       string
	retries  int
	sentinel bool
}

// dispatcher is the shared work queue. It also owns the in-flight set of
// local ids: a row whose id is held by another worker is parked and pushed
// back onto the tail of the queue when the holder releases the id.
type dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []task
	inflight map[string]struct{}
	parked   map[string][]task
	pending  int
	eof      bool
	closed   bool
	workers  int
}

func newDispatcher(workers int) *dispatcher {
	d := &dispatcher{
		inflight: make(map[string]struct{}),
		parked:   make(map[string][]task),
		workers:  workers,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) push(t task) {
	d.mu.Lock()
	d.pending++
	d.items = append(d.items, t)
	d.mu.Unlock()
	d.cond.Signal()
}

// finish marks the end of input.
func (d *dispatcher) finish() {
	d.mu.Lock()
	d.eof = true
	d.drainLocked()
	d.mu.Unlock()
}

// close stops the dispatcher early; every blocked worker receives a
// sentinel.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// next blocks until a task is available.
func (d *dispatcher) next() task {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.items) == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return task{sentinel: true}
	}
	t := d.items[0]
	d.items[0] = task{}
	d.items = d.items[1:]
	return t
}

// acquire claims t.id for the caller. When another worker holds it, t is
// parked for retry and acquire returns false.
func (d *dispatcher) acquire(t task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[t.id]; busy {
		t.retries++
		d.parked[t.id] = append(d.parked[t.id], t)
		return false
	}
	d.inflight[t.id] = struct{}{}
	return true
}

// release frees id, re-queues rows parked on it and marks one row done.
func (d *dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	if parked := d.parked[id]; len(parked) > 0 {
		delete(d.parked, id)
		d.items = append(d.items, parked...)
	}
	d.pending--
	d.drainLocked()
	d.mu.Unlock()
	d.cond.Broadcast()
}

// done marks a row that never entered the in-flight set as finished.
func (d *dispatcher) done() {
	d.mu.Lock()
	d.pending--
	d.drainLocked()
	d.mu.Unlock()
	d.cond.Broadcast()
}

// drainLocked enqueues one sentinel per worker once input has ended and
// every row has completed.
func (d *dispatcher) drainLocked() {
	if !d.eof || d.pending != 0 {
		return
	}
	for i := 0; i < d.workers; i++ {
		d.items = append(d.items, task{sentinel: true})
	}
	d.workers = 0
	d.cond.Broadcast()
}
