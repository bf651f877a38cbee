// Package clock shares the most recently decoded timecode between the
// audio callback and the HTTP request handlers. One writer, many readers:
// the writer publishes whole snapshots through an atomic pointer, so
// publishing never blocks and readers always observe a consistent set of
// fields.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/oliwoli/edlgen/internal/timecode"
)

// State is the recording state machine shared across threads.
type State int

const (
	Stopped State = iota
	Waiting
	Started
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Started:
		return "started"
	}
	return "stopped"
}

// Snapshot is one consistent observation of the clock. LastFrame and
// SessionOrigin are nil until the first frame of a session has been
// decoded.
type Snapshot struct {
	LastFrame     *timecode.Timecode
	SessionOrigin *timecode.Timecode
	UpdatedAt     time.Time
	State         State
}

// Stale reports whether the snapshot's newest frame is older than two
// frame durations, i.e. the signal has gone away.
func (s Snapshot) Stale(now time.Time) bool {
	if s.LastFrame == nil {
		return true
	}
	frameDur := time.Duration(float64(time.Second) / s.LastFrame.Rate().FPS())
	return now.Sub(s.UpdatedAt) > 2*frameDur
}

// Clock is the shared timecode clock. New returns a stopped clock; the zero
// value holds no snapshot and is not ready for use.
type Clock struct {
	cur atomic.Pointer[Snapshot]
}

func New() *Clock {
	c := &Clock{}
	c.cur.Store(&Snapshot{State: Stopped})
	return c
}

// Arm moves the clock into Waiting at session start and forgets the
// previous session's frames.
func (c *Clock) Arm() {
	c.cur.Store(&Snapshot{State: Waiting})
}

// Publish stores a newly decoded frame. Called only from the audio
// callback; it must not block or allocate beyond the snapshot itself. The
// Waiting -> Started transition happens here, exactly once per session, on
// the first frame after Arm.
func (c *Clock) Publish(tc timecode.Timecode) {
	prev := c.cur.Load()
	if prev.State == Stopped {
		return
	}
	next := &Snapshot{
		LastFrame: &tc,
		UpdatedAt: time.Now(),
		State:     Started,
	}
	if prev.SessionOrigin != nil {
		next.SessionOrigin = prev.SessionOrigin
	} else {
		next.SessionOrigin = &tc
	}
	c.cur.Store(next)
}

// Stop ends the session. Frames published after Stop are discarded.
func (c *Clock) Stop() {
	c.cur.Store(&Snapshot{State: Stopped})
}

// Current returns the latest snapshot.
func (c *Clock) Current() Snapshot {
	return *c.cur.Load()
}

// State returns the current recording state without copying the frame.
func (c *Clock) State() State {
	return c.cur.Load().State
}
