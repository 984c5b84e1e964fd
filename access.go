package rwaccess

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/jonboulle/clockwork"
)

type (
	// Access coordinates read/write access to a single (abstract) resource.
	// Instances must be initialized using the [New] factory.
	//
	// Reads run concurrently with each other; a write runs alone. Requests
	// are granted in arrival order, except that a writer waiting only on the
	// drain-down of already-running readers is granted directly, ahead of
	// anything queued behind it. A read or write submitted after a waiting
	// writer is not granted until that writer has run (or timed out).
	Access struct {
		log            *logiface.Logger[logiface.Event]
		pendingWrite   atomic.Pointer[request]
		queue          accessQueue
		defaultTimeout time.Duration
		activeReaders  atomic.Int32
		draining       atomic.Bool
	}

	// request is one queued demand for read or write access. It is owned by
	// the coordinator from enqueue until relinquish. The fired flag is the
	// single ordering primitive between grant, timeout, and cancellation:
	// whichever claims it first owns the request's terminal outcome, and
	// every other path is a silent no-op. A request that loses the race is
	// still routed through the grant machinery later (as it surfaces from
	// the queue or the reservation slot), solely to keep the coordinator's
	// bookkeeping balanced.
	request struct {
		a       *Access
		up      Upstream
		down    Downstream
		exec    *Execution
		cont    Continuation
		timer   clockwork.Timer
		qnext   atomic.Pointer[request]
		timeout time.Duration
		read    bool
		fired   atomic.Bool
		done    atomic.Bool
	}

	// relay forwards a granted operation's outcome downstream, relinquishing
	// the request's hold on access first.
	relay struct {
		r *request
	}
)

var _ Downstream = relay{}

// New creates an access coordinator with the given default wait timeout.
// Zero means wait indefinitely. A negative timeout will cause a panic.
// See [WithLogger] for options.
func New(defaultTimeout time.Duration, options ...Option) *Access {
	if defaultTimeout < 0 {
		panic(`rwaccess: negative default timeout`)
	}
	c := newConfig(options)
	a := &Access{
		defaultTimeout: defaultTimeout,
		log:            c.log,
	}
	a.queue.init()
	return a
}

// DefaultTimeout returns the default wait timeout; zero means indefinite.
func (x *Access) DefaultTimeout() time.Duration { return x.defaultTimeout }

// Read wraps p so that, when driven, it executes with shared (read) access,
// waiting up to the default timeout for the grant.
func (x *Access) Read(p *Promise) *Promise {
	return x.wrap(true, x.defaultTimeout, p)
}

// ReadTimeout is [Access.Read] with a timeout override; zero waits
// indefinitely. A negative timeout will cause a panic, immediately.
func (x *Access) ReadTimeout(p *Promise, timeout time.Duration) *Promise {
	return x.wrap(true, timeout, p)
}

// Write wraps p so that, when driven, it executes with exclusive (write)
// access, waiting up to the default timeout for the grant.
func (x *Access) Write(p *Promise) *Promise {
	return x.wrap(false, x.defaultTimeout, p)
}

// WriteTimeout is [Access.Write] with a timeout override; zero waits
// indefinitely. A negative timeout will cause a panic, immediately.
func (x *Access) WriteTimeout(p *Promise, timeout time.Duration) *Promise {
	return x.wrap(false, timeout, p)
}

func (x *Access) wrap(read bool, timeout time.Duration, p *Promise) *Promise {
	if timeout < 0 {
		panic(`rwaccess: negative timeout`)
	}
	if p == nil {
		panic(`rwaccess: nil promise`)
	}
	return p.Transform(func(up Upstream) Upstream {
		return func(e *Execution, down Downstream) {
			x.submit(&request{
				a:       x,
				up:      up,
				down:    down,
				exec:    e,
				timeout: timeout,
				read:    read,
			})
		}
	})
}

// submit suspends the owning execution and enqueues the request. The timeout
// counts from here, not from when the request reaches the queue head. The
// continuation must be stored before the timer starts, as the timer may fire
// on another goroutine at any point after.
func (x *Access) submit(r *request) {
	r.exec.Suspend(r.abandon, func(cont Continuation) {
		r.cont = cont
		if r.timeout != 0 {
			r.timer = r.exec.clock.AfterFunc(r.timeout, r.onTimeout)
		}
		x.queue.push(r)
		x.drain()
	})
}

// drain pops the queue and grants as many requests as the exclusion rule
// allows. At most one goroutine drains at a time; a losing caller returns
// immediately, relying on the active drainer (or the empty-pass recheck) to
// observe its enqueue. The draining flag is deliberately left set when a
// pass ends at a write: it is released by that write's relinquish, which is
// what makes a granted write exclusive against everything, including reads
// arriving later.
func (x *Access) drain() {
	if !x.draining.CompareAndSwap(false, true) {
		return
	}
	for {
		r := x.queue.pop()
		for r != nil {
			if r.read {
				r.grant()
				r = x.queue.pop()
				continue
			}
			if x.activeReaders.Load() == 0 {
				r.grant()
			} else {
				// Park the writer until the readers drain down. The slot is
				// only ever written while holding the draining flag. The
				// re-check closes the race with a last reader that
				// decremented to zero before the slot was visible to it.
				x.pendingWrite.Store(r)
				x.log.Debug().
					Dur(`timeout`, r.timeout).
					Int(`activeReaders`, int(x.activeReaders.Load())).
					Log(`write parked awaiting readers`)
				if x.activeReaders.Load() == 0 {
					if w := x.pendingWrite.Swap(nil); w != nil {
						w.grant()
					}
				}
			}
			return
		}
		x.draining.Store(false)
		if x.queue.empty() {
			return
		}
		// an enqueue raced the end of the pass; reclaim the flag and go
		// again, iteratively
		if !x.draining.CompareAndSwap(false, true) {
			return
		}
	}
}

// grant resumes the request's suspended execution and connects the wrapped
// operation. If the fired race was already lost (timeout or cancellation got
// there first), the grant is abandoned: relinquish rebalances whatever this
// call just took.
func (r *request) grant() {
	if r.read {
		r.a.activeReaders.Add(1)
	}
	if !r.fire() {
		r.relinquish()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.a.log.Debug().
		Bool(`read`, r.read).
		Dur(`timeout`, r.timeout).
		Log(`access granted`)
	if !r.cont.Resume(func() {
		r.up(r.exec, relay{r: r})
	}) {
		// the owning execution failed between fire and resume; undo the
		// grant and deliver that failure instead
		r.relinquish()
		r.down.Error(r.exec.Err())
	}
}

// relinquish releases the request's hold on access. For the last reader out,
// a parked writer is granted directly, bypassing the queue, so late-arriving
// reads cannot starve it. For a write, the draining flag it pinned is
// released. Either way the drain is re-triggered.
func (r *request) relinquish() {
	if r.read {
		if r.a.activeReaders.Add(-1) == 0 {
			if w := r.a.pendingWrite.Swap(nil); w != nil {
				w.grant()
				return
			}
		}
	} else {
		r.a.draining.Store(false)
	}
	r.a.drain()
}

func (r *request) fire() bool {
	return r.fired.CompareAndSwap(false, true)
}

// onTimeout runs when the request's wait deadline elapses. Losing the fired
// race (already granted) makes it a no-op. Winning it resumes the execution
// with the timeout failure; the request itself is left wherever it sits
// (queue or reservation slot) and is recovered later as a fire loser.
func (r *request) onTimeout() {
	if !r.fire() {
		return
	}
	r.a.log.Debug().
		Bool(`read`, r.read).
		Dur(`timeout`, r.timeout).
		Log(`access timed out`)
	err := &TimeoutError{Timeout: r.timeout, Write: !r.read}
	if !r.cont.Resume(func() {
		r.a.drain()
		r.down.Error(err)
	}) {
		// the owning execution failed first, but the timeout won the fired
		// race, so it owns the outcome
		r.a.drain()
		r.down.Error(err)
	}
}

// abandon is the suspension error hook: the owning execution failed while
// the request was still waiting. The reservation bookkeeping needs no
// unwinding here, for the same reason as onTimeout.
func (r *request) abandon(err error) {
	if !r.fire() {
		return
	}
	r.a.log.Debug().
		Bool(`read`, r.read).
		Err(err).
		Log(`execution failed awaiting access`)
	r.a.drain()
	r.down.Error(err)
}

func (x relay) Success(value any) {
	if x.r.done.CompareAndSwap(false, true) {
		x.r.relinquish()
		x.r.down.Success(value)
	}
}

func (x relay) Error(err error) {
	if x.r.done.CompareAndSwap(false, true) {
		x.r.relinquish()
		x.r.down.Error(err)
	}
}

func (x relay) Complete() {
	if x.r.done.CompareAndSwap(false, true) {
		x.r.relinquish()
		x.r.down.Complete()
	}
}
