package window

import (
	"errors"
	"time"
)

// ErrNoForeground is returned when no foreground process can be determined
var ErrNoForeground = errors.New("no foreground process")

// Probe reports the name of the process owning the foreground window. An
// error, or an empty name, means Unknown.
type Probe interface {
	ForegroundProcess() (string, error)
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func() (string, error)

// ForegroundProcess calls f
func (f ProbeFunc) ForegroundProcess() (string, error) {
	return f()
}

// Stacker keeps this process's windows above others
type Stacker interface {
	SetAbove(above bool) error
}

// Reading is one probe result
type Reading struct {
	Process string
	Err     error
	At      time.Time
}

// Known reports whether the reading names a process
func (r Reading) Known() bool {
	return r.Err == nil && r.Process != ""
}

// Foreground returns the process name, or "" for an Unknown reading
func (r Reading) Foreground() string {
	if !r.Known() {
		return ""
	}
	return r.Process
}
