package speechtotext

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/koscakluka/ema-listen/core/deferred"
	"github.com/koscakluka/ema-listen/core/notify"
	"go.opentelemetry.io/otel/metric"
)

var streamedBytes, _ = meter.Int64Counter("speechtotext.streamed_bytes",
	metric.WithDescription("Audio bytes written to streaming recognitions"),
	metric.WithUnit("By"))

// StreamBackend is the transport of a concrete recognition service.
type StreamBackend interface {
	Send(ctx context.Context, data []byte) error
	// Finish flushes the stream and returns once every final result has been
	// published.
	Finish(ctx context.Context) error
	Close() error
}

const (
	streamStarted int32 = iota
	streamStopping
	streamStopped
)

// Stream implements StreamingRecognition on top of a StreamBackend. Backends
// report recognized text through PublishPartial and PublishFinal.
type Stream struct {
	backend StreamBackend

	state    atomic.Int32
	stopOnce atomic.Bool
	stopDone chan struct{}
	stopErr  error
	closed   atomic.Bool

	stopping      notify.Event[*deferred.Args[struct{}]]
	partialResult notify.Event[string]
	finalResult   notify.Event[string]
	stopped       notify.Event[struct{}]
}

func NewStream(backend StreamBackend) *Stream {
	return &Stream{
		backend:  backend,
		stopDone: make(chan struct{}),
	}
}

func (s *Stream) Stopping() *notify.Event[*deferred.Args[struct{}]] { return &s.stopping }
func (s *Stream) PartialResult() *notify.Event[string]             { return &s.partialResult }
func (s *Stream) FinalResult() *notify.Event[string]               { return &s.finalResult }
func (s *Stream) Stopped() *notify.Event[struct{}]                 { return &s.stopped }

// IsStopping reports whether Stop is running and Stopped was not emitted yet.
func (s *Stream) IsStopping() bool { return s.state.Load() == streamStopping }

// IsStopped reports whether the stream finished stopping. Writes fail from
// then on.
func (s *Stream) IsStopped() bool { return s.state.Load() == streamStopped }

func (s *Stream) Write(ctx context.Context, data []byte) error {
	if s.state.Load() == streamStopped {
		return ErrStreamStopped
	}
	if len(data) == 0 {
		return nil
	}

	if err := s.backend.Send(ctx, data); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	if streamedBytes != nil {
		streamedBytes.Add(ctx, int64(len(data)))
	}
	return nil
}

// PublishPartial and PublishFinal are called by the backend, typically from
// the goroutine that reads its results. Handlers run synchronously on the
// caller's goroutine, in the order results are published.
func (s *Stream) PublishPartial(text string) { s.partialResult.Emit(s, text) }
func (s *Stream) PublishFinal(text string)   { s.finalResult.Emit(s, text) }

// Stop emits Stopping, waits for its handlers, flushes the backend and emits
// Stopped. Repeated and concurrent calls wait for the first one.
func (s *Stream) Stop(ctx context.Context) error {
	return s.stop(ctx, true)
}

// Close releases the backend. A stream that was never stopped still goes
// through Stopping so that subscribers tear down, but is not flushed.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs error
	if !s.stopOnce.Load() {
		if err := s.stop(context.Background(), false); err != nil {
			errs = errors.Join(errs, err)
		}
	} else {
		<-s.stopDone
	}
	if err := s.backend.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close recognition backend: %w", err))
	}
	return errs
}

func (s *Stream) stop(ctx context.Context, finish bool) error {
	if !s.stopOnce.CompareAndSwap(false, true) {
		select {
		case <-s.stopDone:
			return s.stopErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(s.stopDone)

	s.state.Store(streamStopping)

	args := deferred.NewArgs(struct{}{})
	if err := deferred.InvokeEvent(ctx, &s.stopping, s, args); err != nil {
		s.stopErr = errors.Join(s.stopErr, fmt.Errorf("stopping handlers did not finish: %w", err))
	}
	_ = args.Close()

	if finish {
		if err := s.backend.Finish(ctx); err != nil {
			s.stopErr = errors.Join(s.stopErr, fmt.Errorf("failed to finish recognition: %w", err))
		}
	}

	s.state.Store(streamStopped)
	s.stopped.Emit(s, struct{}{})

	if s.stopErr != nil {
		logger.DebugContext(ctx, "streaming recognition stopped with errors", "error", s.stopErr)
	}
	return s.stopErr
}
