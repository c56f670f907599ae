package driver

import (
	"context"
	"time"

	"github.com/me/mudd/internal/callout"
)

// Run drives the dispatch loop: sleep until the next deadline, then drain
// the expired callouts. Blocks until ctx is cancelled or Stop is called.
func (d *Driver) Run(ctx context.Context) error {
	d.log.Info("driver started",
		"capacity", d.cfg.MaxCallouts, "snapshot", d.cfg.SnapshotPath)

	for {
		d.mu.Lock()
		sec, ms := d.sched.Delay()
		d.mu.Unlock()

		var timerC <-chan time.Time
		var timer *time.Timer
		if !(sec == 0 && ms == callout.InfiniteMillis) {
			timer = time.NewTimer(time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			d.log.Info("driver stopping (context cancelled)")
			close(d.doneCh)
			return ctx.Err()
		case <-d.stopCh:
			stopTimer(timer)
			d.log.Info("driver stopping (stop called)")
			close(d.doneCh)
			return nil
		case <-d.wake:
			// a new callout may have undercut the pending deadline
			stopTimer(timer)
		case <-timerC:
			d.Tick(ctx)
		}
	}
}

// Stop gracefully shuts down the dispatch loop and waits for the current
// tick to finish.
func (d *Driver) Stop() error {
	close(d.stopCh)
	<-d.doneCh
	return nil
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
