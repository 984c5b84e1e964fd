package rwaccess

import (
	"runtime"
	"sync/atomic"
)

// accessQueue is an intrusive multi-producer single-consumer FIFO queue of
// access requests. Push is lock-free and safe for any number of concurrent
// producers; pop and empty must only be called by the drain-lock holder.
//
// The implementation is the classic two-instruction MPSC design: producers
// swap themselves in at head and then link the previous node forward, so a
// consumer can momentarily observe a swapped-but-unlinked node. Pop spins
// through that window (the producer is between two instructions), and
// therefore returns nil only when the queue is truly empty.
type accessQueue struct {
	head atomic.Pointer[request] // producer side; most recently pushed
	tail *request                // consumer side; next to pop is tail.qnext
	stub request
}

func (q *accessQueue) init() {
	q.head.Store(&q.stub)
	q.tail = &q.stub
}

func (q *accessQueue) push(r *request) {
	r.qnext.Store(nil)
	prev := q.head.Swap(r)
	prev.qnext.Store(r)
}

// empty reports whether the queue held anything at the instant of the check.
// Only meaningful directly after pop returned nil: at that point the head
// still pointing at the stub implies no push (complete or in flight) has
// occurred since the stub was last cycled through.
func (q *accessQueue) empty() bool {
	return q.head.Load() == &q.stub
}

func (q *accessQueue) pop() *request {
	tail := q.tail
	next := tail.qnext.Load()
	if tail == &q.stub {
		if next == nil {
			if q.head.Load() == tail {
				return nil
			}
			// push in flight; the link is about to appear
			next = q.waitNext(tail)
		}
		// skip over the stub
		q.tail = next
		tail = next
		next = tail.qnext.Load()
	}
	if next != nil {
		q.tail = next
		return tail
	}
	if q.head.Load() != tail {
		q.tail = q.waitNext(tail)
		return tail
	}
	// tail is the single remaining node; cycle the stub in behind it so the
	// list is never left empty
	q.push(&q.stub)
	q.tail = q.waitNext(tail)
	return tail
}

func (q *accessQueue) waitNext(r *request) *request {
	for {
		if next := r.qnext.Load(); next != nil {
			return next
		}
		runtime.Gosched()
	}
}
