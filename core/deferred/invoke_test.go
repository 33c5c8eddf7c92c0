package deferred

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-listen/core/notify"
)

func TestInvokeWithoutHandlersReturnsImmediately(t *testing.T) {
	if err := Invoke[int](context.Background(), nil, nil, NewArgs(0)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	var event notify.Event[*Args[int]]
	if err := InvokeEvent(context.Background(), &event, nil, NewArgs(0)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestInvokeCallsHandlersInOrder(t *testing.T) {
	var event notify.Event[*Args[string]]
	order := []int{}
	for i := range 3 {
		event.Subscribe(func(_ any, args *Args[string]) {
			if args.Payload != "text" {
				t.Errorf("expected payload %q, got %q", "text", args.Payload)
			}
			order = append(order, i)
		})
	}

	if err := InvokeEvent(context.Background(), &event, nil, NewArgs("text")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected handlers [0 1 2], got %v", order)
	}
}

func TestInvokeWaitsOnlyForRequestedDeferrals(t *testing.T) {
	release := make(chan struct{})
	var deferrals []*Deferral

	handlers := []notify.Handler[*Args[int]]{
		func(any, *Args[int]) {},
		func(_ any, args *Args[int]) {
			d := args.Deferral()
			deferrals = append(deferrals, d)
			go func() { <-release; d.Complete() }()
		},
		func(any, *Args[int]) {},
		func(_ any, args *Args[int]) {
			d := args.Deferral()
			deferrals = append(deferrals, d)
			go func() { <-release; d.Complete() }()
		},
	}

	done := make(chan error, 1)
	go func() { done <- Invoke(context.Background(), handlers, nil, NewArgs(0)) }()

	select {
	case err := <-done:
		t.Fatalf("expected invoke to wait for deferrals, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for invoke to finish")
	}

	if len(deferrals) != 2 {
		t.Fatalf("expected two deferrals, got %d", len(deferrals))
	}
	if deferrals[0] == deferrals[1] {
		t.Fatalf("expected every handler to get its own deferral")
	}
}

func TestInvokeWaitsConcurrently(t *testing.T) {
	const handlers = 5
	const delay = 100 * time.Millisecond

	var event notify.Event[*Args[int]]
	for range handlers {
		event.Subscribe(func(_ any, args *Args[int]) {
			d := args.Deferral()
			go func() {
				time.Sleep(delay)
				d.Complete()
			}()
		})
	}

	start := time.Now()
	if err := InvokeEvent(context.Background(), &event, nil, NewArgs(0)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if elapsed := time.Since(start); elapsed >= handlers*delay {
		t.Fatalf("expected deferrals to be awaited concurrently, took %v", elapsed)
	}
}

func TestInvokeCancelledWhileWaiting(t *testing.T) {
	var completed *Deferral
	var pending *Deferral

	var event notify.Event[*Args[int]]
	event.Subscribe(func(_ any, args *Args[int]) {
		completed = args.Deferral()
		completed.Complete()
	})
	event.Subscribe(func(_ any, args *Args[int]) {
		pending = args.Deferral()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- InvokeEvent(ctx, &event, nil, NewArgs(0)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancelled invoke")
	}

	if !completed.Completed() {
		t.Fatalf("expected already completed deferral to stay completed")
	}
	if !pending.Resolved() || pending.Completed() {
		t.Fatalf("expected pending deferral to be resolved as cancelled")
	}
}

func TestInvokeFailsFastWhenAlreadyCancelled(t *testing.T) {
	calls := 0
	handlers := []notify.Handler[*Args[int]]{
		func(any, *Args[int]) { calls++ },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Invoke(ctx, handlers, nil, NewArgs(0))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no handler to run, got %d calls", calls)
	}
}

func TestInvokeStopsCallingHandlersAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handlers := []notify.Handler[*Args[int]]{
		func(any, *Args[int]) { calls++; cancel() },
		func(any, *Args[int]) { calls++ },
	}

	err := Invoke(ctx, handlers, nil, NewArgs(0))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected only the first handler to run, got %d calls", calls)
	}
}

func TestInvokeReusedArgsStartClean(t *testing.T) {
	args := NewArgs(0)
	var mu sync.Mutex
	seen := map[*Deferral]int{}

	handlers := []notify.Handler[*Args[int]]{
		func(_ any, args *Args[int]) {
			d := args.Deferral()
			mu.Lock()
			seen[d]++
			mu.Unlock()
			d.Complete()
		},
	}

	for range 3 {
		if err := Invoke(context.Background(), handlers, nil, args); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	}

	if len(seen) != 3 {
		t.Fatalf("expected a fresh deferral per dispatch, got %d distinct", len(seen))
	}
}
