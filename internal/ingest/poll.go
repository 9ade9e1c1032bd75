package ingest

import (
	"context"
	"time"
)

// Clock provides the current time and interruptible sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock uses wall-clock time
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock returns a Clock backed by the system time.
func RealClock() Clock {
	return realClock{}
}

// Poller waits for externally observable state changes with a bounded ceiling.
type Poller struct {
	clock Clock
}

// NewPoller creates a Poller on the given clock.
func NewPoller(clock Clock) *Poller {
	return &Poller{clock: clock}
}

// Until evaluates cond every interval until it holds or timeout elapses. It
// returns true as soon as cond holds and false once the ceiling is reached.
// The condition is always evaluated at least once, and once more at the
// ceiling. A cancelled ctx ends the wait with ctx's error.
func (p *Poller) Until(ctx context.Context, interval, timeout time.Duration, cond func() bool) (bool, error) {
	deadline := p.clock.Now().Add(timeout)
	for {
		if cond() {
			return true, nil
		}
		now := p.clock.Now()
		if !now.Before(deadline) {
			return false, nil
		}
		wait := interval
		if left := deadline.Sub(now); wait <= 0 || left < wait {
			wait = left
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// Pause sleeps for d on the poller's clock.
func (p *Poller) Pause(ctx context.Context, d time.Duration) error {
	return p.clock.Sleep(ctx, d)
}
