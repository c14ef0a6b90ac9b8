package round

import (
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
)

// Schedule holds at most one pending timer for a round. Arming replaces the
// previous timer, and each arm carries a generation so a callback that was
// already in flight when it got replaced does nothing. Schedule must only be
// used from its Loop.
type Schedule struct {
	clock clock.Clock
	loop  *Loop
	timer clock.Timer
	at    time.Time
	gen   uint64
}

func NewSchedule(c clock.Clock, l *Loop) *Schedule {
	return &Schedule{clock: c, loop: l}
}

// Arm cancels any pending timer and runs fn on the loop at the given time.
func (s *Schedule) Arm(at time.Time, fn func()) {
	s.Cancel()
	gen := s.gen
	s.at = at
	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	s.timer = s.clock.AfterFunc(d, func() {
		s.loop.Post(func() {
			if s.gen != gen {
				return
			}
			s.timer = nil
			s.at = time.Time{}
			fn()
		})
	})
}

// Cancel stops the pending timer, if any.
func (s *Schedule) Cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.at = time.Time{}
	s.gen++
}

// Pending reports whether a timer is armed.
func (s *Schedule) Pending() bool { return s.timer != nil }

// At returns when the pending timer fires, or the zero time.
func (s *Schedule) At() time.Time { return s.at }
