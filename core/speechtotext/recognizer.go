// Package speechtotext defines the recognition side of a streaming pipeline
// and the stream lifecycle shared by recognition backends.
package speechtotext

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-listen/core/deferred"
	"github.com/koscakluka/ema-listen/core/notify"
	"github.com/koscakluka/ema-listen/core/recording"
)

var ErrStreamStopped = errors.New("streaming recognition stopped")

type Recognizer interface {
	// StreamingFormat is the recording format the recognizer consumes while
	// streaming, or recording.FormatNone when it cannot stream.
	StreamingFormat() recording.Format
	StartStreaming(ctx context.Context) (StreamingRecognition, error)
}

// StreamingRecognition is a live recognition session fed through Write.
//
// Stopping is emitted when Stop starts, before the backend flushes; its
// handlers can hold the stop back by taking a deferral. Writes are still
// accepted while stopping.
type StreamingRecognition interface {
	Write(ctx context.Context, data []byte) error
	Stop(ctx context.Context) error
	Close() error

	Stopping() *notify.Event[*deferred.Args[struct{}]]
	PartialResult() *notify.Event[string]
	FinalResult() *notify.Event[string]
	Stopped() *notify.Event[struct{}]
}
