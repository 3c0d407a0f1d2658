package session

import (
	"fmt"
	"time"
)

// Countdown tracks the writing time left in a session. A zero length means
// the session is untimed and can be finished at once.
type Countdown struct {
	length time.Duration
	start  time.Time
	now    func() time.Time
}

// NewCountdown starts a countdown of length at now().
func NewCountdown(length time.Duration, now func() time.Time) *Countdown {
	if now == nil {
		now = time.Now
	}
	return &Countdown{length: max(length, 0), start: now(), now: now}
}

// Remaining is the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	return max(c.length-c.now().Sub(c.start), 0)
}

// FinishEnabled reports whether the writer may end the session.
func (c *Countdown) FinishEnabled() bool {
	return c.Remaining() == 0
}

// String renders the remaining time as MM:SS, rounding partial seconds up.
func (c *Countdown) String() string {
	secs := int((c.Remaining() + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
