package rwaccess

import (
	"github.com/joeycumines/logiface"
	"github.com/jonboulle/clockwork"
)

type (
	// Option models optional configuration, shared by the [New] and
	// [NewExecution] factories. Nil options are ignored.
	Option func(c *config)

	config struct {
		clock clockwork.Clock
		log   *logiface.Logger[logiface.Event]
	}
)

// WithLogger configures a structured logger, used to trace grants, parks,
// timeouts, and cancellations, at debug level. A nil logger (also the
// default) disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithClock configures the clock used to schedule access timeouts.
// It only has an effect on [NewExecution], as timeouts are scheduled on the
// clock of the execution that owns the request. Defaults to the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

func newConfig(options []Option) (c config) {
	for _, o := range options {
		if o != nil {
			o(&c)
		}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return
}
