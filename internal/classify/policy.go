package classify

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"coauthor/internal/event"
)

// Mode selects who may write into a session's document.
type Mode string

const (
	Mixed   Mode = "mixed"
	Human   Mode = "human"
	Machine Mode = "machine"
)

// ParseMode maps a configuration string onto a Mode. Anything unrecognized
// is Mixed.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Human:
		return Human
	case Machine:
		return Machine
	}
	return Mixed
}

// Decision is what the session does with a classified change.
type Decision int

const (
	Log Decision = iota
	Revert
	Ignore
)

func (d Decision) String() string {
	switch d {
	case Log:
		return "log"
	case Revert:
		return "revert"
	case Ignore:
		return "ignore"
	}
	return "unknown"
}

// Change is a classified, non-silent editor mutation.
type Change struct {
	Kind   event.Kind
	Source event.Source
	Delta  event.Delta // text changes only
}

// Policy decides what happens to each change. It is chosen once per session.
type Policy interface {
	Decide(c Change) Decision
}

// Option configures a policy built by NewPolicy.
type Option func(*options)

type options struct {
	normalize func()
	now       func() time.Time
	window    time.Duration
	logger    *slog.Logger
}

// WithNormalize sets the formatting-normalization hook the human policy
// runs after changes.
func WithNormalize(fn func()) Option {
	return func(o *options) { o.normalize = fn }
}

// WithClock overrides time.Now for throttling.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewPolicy returns the policy for mode.
func NewPolicy(mode Mode, opts ...Option) Policy {
	o := options{now: time.Now, window: time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	switch mode {
	case Human:
		return &humanPolicy{
			normalize: o.normalize,
			throttle:  NewThrottle(o.window, o.now),
		}
	case Machine:
		return machinePolicy{logger: o.logger}
	}
	return mixedPolicy{}
}

type mixedPolicy struct{}

func (mixedPolicy) Decide(c Change) Decision {
	if c.Kind == event.Skip {
		return Ignore
	}
	return Log
}

type humanPolicy struct {
	normalize func()
	throttle  *Throttle
}

func (p *humanPolicy) Decide(c Change) Decision {
	if c.Kind == event.Skip {
		return Ignore
	}
	if p.normalize != nil && (c.Kind == event.TextInsert || c.Kind == event.TextDelete) {
		p.throttle.Do(p.normalize)
	}
	return Log
}

type machinePolicy struct {
	logger *slog.Logger
}

func (p machinePolicy) Decide(c Change) Decision {
	switch {
	case c.Kind == event.Skip:
		return Ignore
	case c.Source == event.SourceAPI:
		return Log
	case c.Kind != event.TextInsert:
		return Log
	case IsWhitespace(c.Delta):
		return Log
	}
	p.logger.Debug("reverting user insert in machine mode", "text", c.Delta.InsertedText())
	return Revert
}

// Throttle runs a function at most once per window. The first call always
// runs.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   time.Time
	ran    bool
}

// NewThrottle returns a throttle over window. A nil now means time.Now.
func NewThrottle(window time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{window: window, now: now}
}

// Do runs fn unless it already ran within the window, and reports whether
// it ran.
func (t *Throttle) Do(fn func()) bool {
	t.mu.Lock()
	now := t.now()
	if t.ran && now.Sub(t.last) < t.window {
		t.mu.Unlock()
		return false
	}
	t.ran = true
	t.last = now
	t.mu.Unlock()
	fn()
	return true
}
