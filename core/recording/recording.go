// Package recording defines the audio source side of a streaming pipeline:
// recorders start recordings, recordings accumulate data and notify about
// new chunks and about being stopped.
package recording

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-listen/core/notify"
)

var (
	ErrStopped           = errors.New("recording stopped")
	ErrUnsupportedFormat = errors.New("unsupported recording format")
)

// Recording is a started audio capture.
//
// DataReceived is emitted for every chunk in capture order. Stopped is
// emitted exactly once, after which no more chunks are emitted. Subscribers
// have to release their subscriptions before Close.
type Recording interface {
	Format() Format
	// Header is empty for FormatRaw.
	Header() []byte
	// Data is everything captured so far, without the header.
	Data() []byte

	DataReceived() *notify.Event[[]byte]
	Stopped() *notify.Event[struct{}]

	Stop(ctx context.Context) error
	Close() error
}

// Follower is implemented by recordings that can hand out the data captured
// so far and subscribe to later chunks in one step, so that no chunk is
// missed or seen twice in between.
type Follower interface {
	Follow(handler notify.Handler[[]byte]) (buffered []byte, sub *notify.Subscription)
}

type Recorder interface {
	Start(ctx context.Context, format Format) (Recording, error)
}

type RecorderFunc func(ctx context.Context, format Format) (Recording, error)

func (f RecorderFunc) Start(ctx context.Context, format Format) (Recording, error) {
	return f(ctx, format)
}
