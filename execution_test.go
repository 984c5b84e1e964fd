package rwaccess

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestExecution_ResumeClaimsOnce(t *testing.T) {
	e := NewExecution()

	var cont Continuation
	e.Suspend(nil, func(c Continuation) { cont = c })

	var ran int
	if !cont.Resume(func() { ran++ }) {
		t.Fatal(`expected first resume to claim the suspension`)
	}
	if ran != 1 {
		t.Fatalf(`expected block to have run once, got %d`, ran)
	}
	if cont.Resume(func() { ran++ }) {
		t.Fatal(`expected second resume to be rejected`)
	}
	if ran != 1 {
		t.Fatalf(`expected block count to remain 1, got %d`, ran)
	}
}

func TestExecution_ZeroContinuation(t *testing.T) {
	var cont Continuation
	if cont.Resume(func() {}) {
		t.Fatal(`expected zero continuation to reject resume`)
	}
}

func TestExecution_FailClaimsSuspensions(t *testing.T) {
	e := NewExecution()
	boom := errors.New(`boom`)

	var hooked []error
	var conts []Continuation
	for i := 0; i < 3; i++ {
		e.Suspend(func(err error) { hooked = append(hooked, err) }, func(c Continuation) {
			conts = append(conts, c)
		})
	}

	// resume one before the failure
	if !conts[0].Resume(func() {}) {
		t.Fatal(`expected resume to succeed before failure`)
	}

	e.Fail(boom)

	if len(hooked) != 2 {
		t.Fatalf(`expected 2 hooks, got %d`, len(hooked))
	}
	for _, err := range hooked {
		if err != boom { //nolint:errorlint
			t.Fatalf(`unexpected hook error: %v`, err)
		}
	}
	if err := e.Err(); err != boom { //nolint:errorlint
		t.Fatalf(`unexpected Err: %v`, err)
	}

	// resume after failure is rejected
	if conts[1].Resume(func() { t.Error(`block must not run`) }) {
		t.Fatal(`expected resume after failure to be rejected`)
	}

	// second failure is a no-op
	e.Fail(errors.New(`other`))
	if err := e.Err(); err != boom { //nolint:errorlint
		t.Fatalf(`expected first failure to stick, got %v`, err)
	}
}

func TestExecution_SuspendAfterFailure(t *testing.T) {
	e := NewExecution()
	boom := errors.New(`boom`)
	e.Fail(boom)

	var hooked error
	e.Suspend(func(err error) { hooked = err }, func(Continuation) {
		t.Error(`segment must not run on a failed execution`)
	})
	if hooked != boom { //nolint:errorlint
		t.Fatalf(`expected immediate hook with %v, got %v`, boom, hooked)
	}
}

func TestExecution_SerializesBlocks(t *testing.T) {
	e := NewExecution()

	const suspensions = 200

	conts := make([]Continuation, 0, suspensions)
	for i := 0; i < suspensions; i++ {
		e.Suspend(nil, func(c Continuation) { conts = append(conts, c) })
	}

	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		overlap atomic.Int32
		ran     atomic.Int32
	)
	wg.Add(suspensions)
	for i := 0; i < suspensions; i++ {
		go func(c Continuation) {
			defer wg.Done()
			c.Resume(func() {
				if active.Add(1) != 1 {
					overlap.Add(1)
				}
				ran.Add(1)
				active.Add(-1)
			})
		}(conts[i])
	}
	wg.Wait()

	// a resume may have handed its block to another goroutine's run loop
	for deadline := time.Now().Add(time.Second * 5); ran.Load() != suspensions; {
		if time.Now().After(deadline) {
			t.Fatalf(`expected %d blocks to run, got %d`, suspensions, ran.Load())
		}
		runtime.Gosched()
	}
	if overlap.Load() != 0 {
		t.Fatalf(`detected %d overlapping blocks`, overlap.Load())
	}
}

func TestExecution_Clock(t *testing.T) {
	clk := clockwork.NewFakeClock()
	if NewExecution(WithClock(clk)).Clock() != clk {
		t.Fatal(`expected configured clock`)
	}
	if NewExecution().Clock() == nil {
		t.Fatal(`expected default clock`)
	}
	if NewExecution(nil).Clock() == nil {
		t.Fatal(`expected nil options to be ignored`)
	}
}

func TestExecution_FailNilError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal(`expected panic`)
		}
	}()
	NewExecution().Fail(nil)
}
