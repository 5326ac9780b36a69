// Package signal turns OS interrupts into context cancellation.
package signal

import (
	"context"
	"os"
	"os/signal"
)

// NotifierWithContext calls notifyFn for each received signal until ctx is done.
func NotifierWithContext(ctx context.Context, notifyFn func(sig os.Signal), sigs ...os.Signal) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				notifyFn(sig)
			}
		}
	}()
}

// NotifyContext returns a context that is cancelled, with a ContextCanceledCause, on the first interrupt signal.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	NotifierWithContext(ctx, func(sig os.Signal) {
		cancel(NewContextCanceledCause(sig))
	}, InterruptSignals...)

	return ctx, func() { cancel(nil) }
}
