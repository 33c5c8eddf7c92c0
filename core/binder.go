package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-listen/core/audio"
	"github.com/koscakluka/ema-listen/core/notify"
	"github.com/koscakluka/ema-listen/core/recording"
	"github.com/koscakluka/ema-listen/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var failedWrites, _ = meter.Int64Counter("orchestration.failed_writes",
	metric.WithDescription("Audio chunks the recognition refused while bound to a recording"))

// Binding forwards a recording into a streaming recognition until the
// recording stops, the bind context is cancelled or Close is called.
type Binding struct {
	recognition speechtotext.StreamingRecognition
	sink        ErrorSink
	writeCtx    context.Context

	subMu   sync.Mutex
	dataSub *notify.Subscription
	stopSub *notify.Subscription

	queueMu      sync.Mutex
	queue        [][]byte
	drained      bool
	updateSignal chan struct{}

	tornDown   atomic.Bool
	stopWriter chan struct{}
	cancelHook chan struct{}
	done       chan struct{}
}

// Bind connects recording to recognition. The header (for formats that have
// one) and the data recorded so far are written before Bind returns; live
// chunks are written afterwards in the order the recording emits them.
// Failed live writes go to sink and do not interrupt the recording.
func Bind(ctx context.Context, recognition speechtotext.StreamingRecognition, rec recording.Recording, sink ErrorSink) (*Binding, error) {
	if recognition == nil || rec == nil {
		return nil, fmt.Errorf("%w: recognition and recording are required", ErrNilArgument)
	}

	format := rec.Format()
	if format == recording.FormatNone {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	var header []byte
	if format.HasHeader() {
		if header = rec.Header(); len(header) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, format)
		}
	}

	spanCtx, span := tracer.Start(ctx, "bind recording")
	defer span.End()
	span.SetAttributes(attribute.String("recording.format", format.String()))

	b := &Binding{
		recognition:  recognition,
		sink:         sink,
		writeCtx:     ctx,
		updateSignal: make(chan struct{}, 1),
		stopWriter:   make(chan struct{}),
		cancelHook:   make(chan struct{}),
		done:         make(chan struct{}),
	}

	if len(header) > 0 {
		if err := recognition.Write(spanCtx, header); err != nil {
			err = fmt.Errorf("failed to write recording header: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	buffered := b.subscribe(rec)
	if len(buffered) > 0 {
		span.SetAttributes(attribute.Int("recording.buffered_bytes", len(buffered)))
		if duration, ok := bufferedDuration(rec, len(buffered)); ok {
			span.SetAttributes(attribute.Int64("recording.buffered_ms", duration.Milliseconds()))
		}
		if err := recognition.Write(spanCtx, buffered); err != nil {
			b.unsubscribe()
			err = fmt.Errorf("failed to write buffered recording data: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	go b.writeQueued()
	withContextCancelHook(ctx, b.cancelHook, func() { b.teardown("context cancelled") })

	return b, nil
}

// Done is closed once the binding was torn down and every chunk queued
// before that has been written.
func (b *Binding) Done() <-chan struct{} { return b.done }

// Close detaches the binding from the recording. Chunks already queued are
// still written unless the bind context is cancelled.
func (b *Binding) Close() error {
	b.teardown("closed")
	return nil
}

func (b *Binding) subscribe(rec recording.Recording) []byte {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	var buffered []byte
	if follower, ok := rec.(recording.Follower); ok {
		buffered, b.dataSub = follower.Follow(b.enqueue)
	} else {
		buffered = rec.Data()
		b.dataSub = rec.DataReceived().Subscribe(b.enqueue)
	}
	b.stopSub = rec.Stopped().Subscribe(func(any, struct{}) {
		b.teardown("recording stopped")
	})

	return buffered
}

func (b *Binding) unsubscribe() {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	if b.dataSub != nil {
		b.dataSub.Unsubscribe()
	}
	if b.stopSub != nil {
		b.stopSub.Unsubscribe()
	}
}

func (b *Binding) teardown(reason string) {
	if !b.tornDown.CompareAndSwap(false, true) {
		return
	}

	if err := panicSafeNamed("recording unsubscription", func() error {
		b.unsubscribe()
		return nil
	}); err != nil {
		logger.Warn("Failed to detach from recording", "error", err)
		capture(b.sink, err)
	}

	close(b.cancelHook)
	close(b.stopWriter)
	logger.Debug("Recording binding torn down", "reason", reason)
}

func (b *Binding) enqueue(_ any, chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	b.queueMu.Lock()
	if b.drained {
		b.queueMu.Unlock()
		logger.Debug("Dropping audio chunk emitted after binding finished", "bytes", len(chunk))
		return
	}
	b.queue = append(b.queue, chunk)
	b.queueMu.Unlock()

	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}

func (b *Binding) next() ([]byte, bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}

	chunk := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return chunk, true
}

func (b *Binding) writeQueued() {
	defer close(b.done)

	for {
		if chunk, ok := b.next(); ok {
			b.write(chunk)
			continue
		}

		select {
		case <-b.updateSignal:
		case <-b.stopWriter:
			b.drain()
			return
		}
	}
}

func (b *Binding) drain() {
	for {
		b.queueMu.Lock()
		if len(b.queue) == 0 {
			b.drained = true
			b.queueMu.Unlock()
			return
		}
		b.queueMu.Unlock()

		if chunk, ok := b.next(); ok {
			b.write(chunk)
		}
	}
}

// write forwards one chunk. Once the bind context is cancelled, chunks still
// queued are reported as failed instead of being written.
func (b *Binding) write(chunk []byte) {
	err := context.Cause(b.writeCtx)
	if err == nil {
		err = b.recognition.Write(b.writeCtx, chunk)
	}
	if err != nil {
		err = fmt.Errorf("failed to write audio chunk: %w", err)
		logger.Warn("Failed to forward recorded audio", "error", err)
		trace.SpanFromContext(b.writeCtx).RecordError(err)
		if failedWrites != nil {
			failedWrites.Add(b.writeCtx, 1)
		}
		capture(b.sink, err)
	}
}

// bufferedDuration is how much audio n bytes of rec hold, for recordings that
// expose their encoding.
func bufferedDuration(rec recording.Recording, n int) (time.Duration, bool) {
	encoded, ok := rec.(interface{ EncodingInfo() audio.EncodingInfo })
	if !ok {
		return 0, false
	}
	bytesPerSecond := encoded.EncodingInfo().BytesPerSecond()
	if bytesPerSecond <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond), true
}
