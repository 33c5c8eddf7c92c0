package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-listen/core/audio"
	"github.com/koscakluka/ema-listen/core/notify"
)

// Buffered is a Recording that capture backends feed through Append. It
// keeps everything appended so far and emits every chunk to subscribers.
type Buffered struct {
	format       Format
	header       []byte
	encodingInfo audio.EncodingInfo

	// mu serializes appends with their emission, and snapshots with
	// subscriptions made through Follow.
	mu      sync.Mutex
	data    []byte
	stopped bool

	dataReceived notify.Event[[]byte]
	stoppedEvent notify.Event[struct{}]

	stopping atomic.Bool
	closed   atomic.Bool
	stopErr  error
	stopDone chan struct{}

	onStop  func(ctx context.Context) error
	onClose func() error
}

type BufferedOption func(*Buffered)

// WithStopHook is called once when the recording is stopped, before the
// stop notification; backends use it to stop capturing.
func WithStopHook(hook func(ctx context.Context) error) BufferedOption {
	return func(b *Buffered) {
		b.onStop = hook
	}
}

// WithCloseHook is called once when the recording is closed.
func WithCloseHook(hook func() error) BufferedOption {
	return func(b *Buffered) {
		b.onClose = hook
	}
}

// NewBuffered creates a started recording. For FormatWAV the header is
// derived from encodingInfo.
func NewBuffered(format Format, encodingInfo audio.EncodingInfo, opts ...BufferedOption) (*Buffered, error) {
	b := &Buffered{
		format:       format,
		encodingInfo: encodingInfo.WithDefaults(),
		stopDone:     make(chan struct{}),
	}

	switch format {
	case FormatRaw:
	case FormatWAV:
		header, err := WAVHeader(b.encodingInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to build wav header: %w", err)
		}
		b.header = header
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

func (b *Buffered) Format() Format                   { return b.format }
func (b *Buffered) EncodingInfo() audio.EncodingInfo { return b.encodingInfo }
func (b *Buffered) Header() []byte                   { return append([]byte(nil), b.header...) }

func (b *Buffered) Data() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func (b *Buffered) DataReceived() *notify.Event[[]byte] { return &b.dataReceived }
func (b *Buffered) Stopped() *notify.Event[struct{}]    { return &b.stoppedEvent }

func (b *Buffered) IsStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Append stores chunk and emits it to DataReceived subscribers. The chunk is
// copied, so capture backends may reuse their buffers. Handlers run while
// the recording is locked and must not call back into it.
func (b *Buffered) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrStopped
	}

	copied := append([]byte(nil), chunk...)
	b.data = append(b.data, copied...)
	b.dataReceived.Emit(b, copied)
	return nil
}

func (b *Buffered) Follow(handler notify.Handler[[]byte]) ([]byte, *notify.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]byte(nil), b.data...), b.dataReceived.Subscribe(handler)
}

// Stop ends the recording and emits Stopped once. Concurrent and repeated
// calls wait for the first one and return its result.
func (b *Buffered) Stop(ctx context.Context) error {
	if !b.stopping.CompareAndSwap(false, true) {
		select {
		case <-b.stopDone:
			return b.stopErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(b.stopDone)

	if b.onStop != nil {
		if err := b.onStop(ctx); err != nil {
			b.stopErr = fmt.Errorf("failed to stop capture: %w", err)
		}
	}

	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.stoppedEvent.Emit(b, struct{}{})
	return b.stopErr
}

// Close stops the recording if nobody did yet. Data stays readable
// afterwards.
func (b *Buffered) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs error
	if !b.stopping.Load() {
		if err := b.Stop(context.Background()); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if b.onClose != nil {
		if err := b.onClose(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to release capture: %w", err))
		}
	}
	return errs
}
