package rwaccess

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/jonboulle/clockwork"
)

const (
	suspensionWaiting int32 = iota
	suspensionResumed
	suspensionFailed
)

type (
	// Execution is a serialized context for driving asynchronous work.
	// Resumed blocks run one at a time, in enqueue order, on whichever
	// goroutine caused them to become runnable; no goroutine is ever parked
	// waiting for another block to finish.
	//
	// An Execution may be suspended any number of times, concurrently, and
	// failed at most once. Failing an execution invokes the error hook of
	// every outstanding suspension, exactly once each, and causes later
	// suspensions to fail immediately.
	Execution struct {
		clock       clockwork.Clock
		log         *logiface.Logger[logiface.Event]
		err         error
		work        []func()
		suspensions []*suspension
		running     bool
		mu          sync.Mutex
	}

	// Continuation is the resumable handle of a single suspension.
	// The zero value is not usable; obtain one via [Execution.Suspend].
	Continuation struct {
		s *suspension
	}

	suspension struct {
		e       *Execution
		onError func(err error)
		state   atomic.Int32
	}
)

// NewExecution creates a new Execution. See [WithClock] and [WithLogger].
func NewExecution(options ...Option) *Execution {
	c := newConfig(options)
	return &Execution{clock: c.clock, log: c.log}
}

// Clock returns the clock used to schedule work against this execution.
func (x *Execution) Clock() clockwork.Clock { return x.clock }

// Err returns the terminal failure of the execution, or nil.
func (x *Execution) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

// Suspend registers a new suspension then runs segment synchronously,
// passing the [Continuation] that will resume it. The onError hook is
// invoked, exactly once, with the execution's failure, if [Execution.Fail]
// claims the suspension before the continuation is resumed.
//
// If the execution has already failed, onError is invoked immediately, and
// segment is not run.
func (x *Execution) Suspend(onError func(err error), segment func(cont Continuation)) {
	s := &suspension{e: x, onError: onError}
	x.mu.Lock()
	if err := x.err; err != nil {
		x.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return
	}
	x.suspensions = append(x.suspensions, s)
	x.mu.Unlock()
	if segment != nil {
		segment(Continuation{s: s})
	}
}

// Fail marks the execution as failed, claiming every outstanding suspension
// and invoking its error hook with err, on the calling goroutine. Only the
// first call has an effect. A nil error will cause a panic.
func (x *Execution) Fail(err error) {
	if err == nil {
		panic(`rwaccess: nil error`)
	}
	x.mu.Lock()
	if x.err != nil {
		x.mu.Unlock()
		return
	}
	x.err = err
	pending := x.suspensions
	x.suspensions = nil
	x.mu.Unlock()
	x.log.Debug().
		Err(err).
		Int(`suspensions`, len(pending)).
		Log(`execution failed`)
	for _, s := range pending {
		if s.state.CompareAndSwap(suspensionWaiting, suspensionFailed) && s.onError != nil {
			s.onError(err)
		}
	}
}

// Resume claims the suspension and enqueues block to run on the owning
// execution, returning false (without running block) if the suspension was
// already claimed, e.g. by [Execution.Fail]. Only the first call may return
// true.
func (x Continuation) Resume(block func()) bool {
	s := x.s
	if s == nil || !s.state.CompareAndSwap(suspensionWaiting, suspensionResumed) {
		return false
	}
	s.e.remove(s)
	s.e.enqueue(block)
	return true
}

func (x *Execution) remove(s *suspension) {
	x.mu.Lock()
	if i := slices.Index(x.suspensions, s); i != -1 {
		x.suspensions = slices.Delete(x.suspensions, i, i+1)
	}
	x.mu.Unlock()
}

// enqueue appends block to the work queue, then, unless another goroutine is
// already doing so, runs queued blocks until the queue is emptied.
func (x *Execution) enqueue(block func()) {
	x.mu.Lock()
	x.work = append(x.work, block)
	if x.running {
		x.mu.Unlock()
		return
	}
	x.running = true
	for len(x.work) != 0 {
		b := x.work[0]
		x.work = x.work[1:]
		x.mu.Unlock()
		b()
		x.mu.Lock()
	}
	x.running = false
	x.mu.Unlock()
}
