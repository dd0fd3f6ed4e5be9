package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"cs-go/internal/cs"
)

// RunLoop calls cycle, then waits interval on clock, until ctx is done. A
// failed cycle is logged and the loop waits for the next one; the poll
// interval is the only retry. Cancellation returns nil.
func RunLoop(ctx context.Context, cycle func(context.Context) error, clock clockwork.Clock, interval time.Duration, logger cs.Logger) error {
	for n := 1; ; n++ {
		if err := cycle(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("interrupted during cycle", "cycle", n)
				return nil
			}
			logger.Error("cycle ended early, waiting for next", "cycle", n, "error", err)
		}

		timer := clock.NewTimer(interval)
		logger.Debug("waiting for next cycle", "interval", interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("poll loop stopped", "cycles", n)
			return nil
		case <-timer.Chan():
		}
	}
}
