package session

import (
	"context"
	"time"
)

// ticker calls fire once per interval until stopped. fire receives the
// ticker's own context so a blocked send unblocks on stop.
type ticker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func runTicker(parent context.Context, interval time.Duration, fire func(ctx context.Context)) *ticker {
	ctx, cancel := context.WithCancel(parent)
	t := &ticker{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)

		tk := time.NewTicker(interval)
		defer tk.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				fire(ctx)
			}
		}
	}()

	return t
}

// stop cancels the ticker and waits until no further fire can happen.
func (t *ticker) stop() {
	t.cancel()
	<-t.done
}
