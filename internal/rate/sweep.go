package rate

import (
	"context"
	"time"
)

// Sweeper is implemented by process-local stores whose entries must be
// evicted even when no traffic arrives.
type Sweeper interface {
	Sweep()
}

// RunSweeper calls s.Sweep every interval until ctx is done. It blocks; run it
// in its own goroutine.
func RunSweeper(ctx context.Context, s Sweeper, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
