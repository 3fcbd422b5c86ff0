package session

import (
	"time"

	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/timer"
)

// Status is a point-in-time view of the session
type Status struct {
	Folders        []string      `json:"folders"`
	ImageCount     int           `json:"imageCount"`
	Index          int           `json:"index"`
	Current        string        `json:"current,omitempty"`
	Timer          string        `json:"timer"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds float64       `json:"elapsedSeconds"`
	ElapsedText    string        `json:"elapsed"`
	Tracked        string        `json:"trackedProcessName,omitempty"`
	Foreground     string        `json:"foreground,omitempty"`
	AlwaysOnTop    bool          `json:"alwaysOnTop"`
}

// HasImage reports whether an image is current
func (s Status) HasImage() bool {
	return s.Index != collection.NoImage
}

// TimerState parses the Timer field back into a timer.State
func (s Status) TimerState() timer.State {
	for _, st := range []timer.State{timer.Idle, timer.Running, timer.PausedByUser, timer.PausedByFocus} {
		if st.String() == s.Timer {
			return st
		}
	}
	return timer.Idle
}

// Subscribe returns a channel that receives the latest Status after each
// change. Slow readers only see the most recent value. Call cancel to stop.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.status
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Status returns the most recently published status
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.status
	st.Folders = append([]string{}, st.Folders...)
	return st
}

// Images returns the most recently published image list
func (c *Controller) Images() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.images...)
}

func (c *Controller) snapshot() Status {
	elapsed := c.engine.Elapsed()
	current, _ := c.coll.Current()
	return Status{
		Folders:        c.coll.Folders(),
		ImageCount:     c.coll.Len(),
		Index:          c.coll.Index(),
		Current:        current,
		Timer:          c.engine.State().String(),
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		ElapsedText:    timer.FormatElapsed(elapsed),
		Tracked:        c.engine.Tracked(),
		Foreground:     c.foreground,
		AlwaysOnTop:    c.cfg.AlwaysOnTop,
	}
}

// publish stores a fresh status and hands it to subscribers
func (c *Controller) publish() {
	st := c.snapshot()
	images := c.coll.Images()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = st
	c.images = images
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
