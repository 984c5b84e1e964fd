package rwaccess

import "sync"

type (
	// Downstream is the three-outcome sink of an asynchronous operation.
	// Exactly one of the methods is called, exactly once, per connected
	// operation.
	Downstream interface {
		// Success delivers the operation's value.
		Success(value any)
		// Error delivers the operation's failure.
		Error(err error)
		// Complete indicates the operation finished without producing a value.
		Complete()
	}

	// Upstream is a connectable asynchronous computation. Connecting it to a
	// Downstream starts the computation, within the given [Execution];
	// eventually exactly one outcome is delivered to the sink.
	Upstream func(e *Execution, down Downstream)

	// Promise is a lazy asynchronous value. It does nothing until driven via
	// Connect, and may be wrapped (e.g. by [Access.Read] or [Access.Write])
	// via Transform. Driving the same Promise more than once starts the
	// underlying computation more than once.
	Promise struct {
		up Upstream
	}

	// SinkFuncs adapts plain functions to the [Downstream] interface.
	// Nil fields discard the corresponding outcome.
	SinkFuncs struct {
		OnSuccess  func(value any)
		OnError    func(err error)
		OnComplete func()
	}
)

var _ Downstream = SinkFuncs{}

// NewPromise creates a Promise from an arbitrary [Upstream].
// A nil upstream will cause a panic.
func NewPromise(up Upstream) *Promise {
	if up == nil {
		panic(`rwaccess: nil upstream`)
	}
	return &Promise{up: up}
}

// Value returns a Promise that immediately succeeds with value.
func Value(value any) *Promise {
	return &Promise{up: func(e *Execution, down Downstream) {
		down.Success(value)
	}}
}

// Failed returns a Promise that immediately fails with err.
func Failed(err error) *Promise {
	return &Promise{up: func(e *Execution, down Downstream) {
		down.Error(err)
	}}
}

// Completed returns a Promise that immediately completes without a value.
func Completed() *Promise {
	return &Promise{up: func(e *Execution, down Downstream) {
		down.Complete()
	}}
}

// Sync returns a Promise wrapping a synchronous computation, run when the
// promise is connected.
func Sync(fn func() (any, error)) *Promise {
	if fn == nil {
		panic(`rwaccess: nil function`)
	}
	return &Promise{up: func(e *Execution, down Downstream) {
		if value, err := fn(); err != nil {
			down.Error(err)
		} else {
			down.Success(value)
		}
	}}
}

// Connect drives the promise within e, delivering its outcome to down.
// Nil arguments will cause a panic.
func (x *Promise) Connect(e *Execution, down Downstream) {
	if e == nil {
		panic(`rwaccess: nil execution`)
	}
	if down == nil {
		panic(`rwaccess: nil downstream`)
	}
	x.up(e, down)
}

// Transform returns a new Promise whose upstream is derived from this
// promise's upstream. It is the interposition point used by [Access].
func (x *Promise) Transform(t func(up Upstream) Upstream) *Promise {
	if t == nil {
		panic(`rwaccess: nil transform`)
	}
	up := t(x.up)
	if up == nil {
		panic(`rwaccess: nil upstream`)
	}
	return &Promise{up: up}
}

func (x SinkFuncs) Success(value any) {
	if x.OnSuccess != nil {
		x.OnSuccess(value)
	}
}

func (x SinkFuncs) Error(err error) {
	if x.OnError != nil {
		x.OnError(err)
	}
}

func (x SinkFuncs) Complete() {
	if x.OnComplete != nil {
		x.OnComplete()
	}
}

type deferredState int

const (
	deferredPending deferredState = iota
	deferredSucceeded
	deferredFailed
	deferredCompleted
)

// Deferred is an externally-settled promise source. It settles at most once;
// every connected sink observes the single terminal outcome, exactly once,
// including sinks connected after settlement.
type Deferred struct {
	value any
	err   error
	sinks []Downstream
	state deferredState
	mu    sync.Mutex
}

// NewDeferred creates a new, pending Deferred.
func NewDeferred() *Deferred {
	return &Deferred{}
}

// Promise returns a Promise connected to this Deferred. The [Execution]
// passed on connect is not used; outcomes are delivered on the goroutine
// that settles the Deferred (or connects, if already settled).
func (x *Deferred) Promise() *Promise {
	return &Promise{up: func(e *Execution, down Downstream) {
		x.connect(down)
	}}
}

// Succeed settles the Deferred with a value, returning false if it was
// already settled.
func (x *Deferred) Succeed(value any) bool {
	return x.settle(deferredSucceeded, value, nil)
}

// Fail settles the Deferred with an error, returning false if it was already
// settled. A nil error will cause a panic.
func (x *Deferred) Fail(err error) bool {
	if err == nil {
		panic(`rwaccess: nil error`)
	}
	return x.settle(deferredFailed, nil, err)
}

// Complete settles the Deferred without a value, returning false if it was
// already settled.
func (x *Deferred) Complete() bool {
	return x.settle(deferredCompleted, nil, nil)
}

func (x *Deferred) connect(down Downstream) {
	x.mu.Lock()
	if x.state == deferredPending {
		x.sinks = append(x.sinks, down)
		x.mu.Unlock()
		return
	}
	state, value, err := x.state, x.value, x.err
	x.mu.Unlock()
	dispatch(down, state, value, err)
}

func (x *Deferred) settle(state deferredState, value any, err error) bool {
	x.mu.Lock()
	if x.state != deferredPending {
		x.mu.Unlock()
		return false
	}
	x.state, x.value, x.err = state, value, err
	sinks := x.sinks
	x.sinks = nil
	x.mu.Unlock()
	for _, down := range sinks {
		dispatch(down, state, value, err)
	}
	return true
}

func dispatch(down Downstream, state deferredState, value any, err error) {
	switch state {
	case deferredSucceeded:
		down.Success(value)
	case deferredFailed:
		down.Error(err)
	case deferredCompleted:
		down.Complete()
	}
}
