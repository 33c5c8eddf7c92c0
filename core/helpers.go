package orchestration

import (
	"context"
	"fmt"
)

// withContextCancelHook calls onContextDone when ctx is done, unless done is
// closed first.
func withContextCancelHook(ctx context.Context, done <-chan struct{}, onContextDone func()) {
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
}

func panicSafeNamed(name string, run func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s panicked: %v", name, recovered)
		}
	}()

	if err = run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	return nil
}
