package window

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval is how often the foreground process is sampled
const DefaultPollInterval = 500 * time.Millisecond

// Poller samples a Probe on a fixed interval. Probe failures are delivered as
// Unknown readings so consumers see a steady stream.
type Poller struct {
	probe    Probe
	clock    clockwork.Clock
	interval time.Duration
}

// NewPoller creates a poller. A nil clock uses the real clock and a
// non-positive interval uses DefaultPollInterval.
func NewPoller(probe Probe, clock clockwork.Clock, interval time.Duration) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{probe: probe, clock: clock, interval: interval}
}

// Interval returns the sampling interval
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Sample takes one reading
func (p *Poller) Sample() Reading {
	name, err := p.probe.ForegroundProcess()
	return Reading{Process: name, Err: err, At: p.clock.Now()}
}

// Run delivers a reading immediately and then once per interval until ctx is
// done. deliver is called from the Run goroutine.
func (p *Poller) Run(ctx context.Context, deliver func(Reading)) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	deliver(p.Sample())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			deliver(p.Sample())
		}
	}
}
