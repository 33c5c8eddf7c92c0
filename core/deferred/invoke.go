package deferred

import (
	"context"

	"github.com/koscakluka/ema-listen/core/notify"
	"golang.org/x/sync/errgroup"
)

// Invoke calls handlers synchronously in order and returns once every
// deferral they requested has been completed.
//
// The args deferral slot is reset after each handler, so every handler gets
// its own deferral. Waits run concurrently. If ctx is done before a handler
// is called, Invoke stops calling handlers; outstanding waits are cancelled
// and the returned error matches ErrCancelled.
func Invoke[T any](ctx context.Context, handlers []notify.Handler[*Args[T]], sender any, args *Args[T]) error {
	if len(handlers) == 0 {
		return nil
	}

	var g errgroup.Group
	var cancelled error
	for _, handler := range handlers {
		if ctx.Err() != nil {
			cancelled = cancelledError(ctx)
			break
		}

		handler(sender, args)

		deferral := args.takeDeferral()
		if deferral == nil {
			continue
		}
		g.Go(func() error { return deferral.Wait(ctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return cancelled
}

// InvokeEvent runs Invoke over the handlers currently subscribed to event.
func InvokeEvent[T any](ctx context.Context, event *notify.Event[*Args[T]], sender any, args *Args[T]) error {
	if event == nil {
		return nil
	}
	return Invoke(ctx, event.Handlers(), sender, args)
}
